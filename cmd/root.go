package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldsight/fieldsight-go/cmd/analyze"
	"github.com/fieldsight/fieldsight-go/cmd/serve"
	"github.com/fieldsight/fieldsight-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldsight",
		Short: "FieldSight trajectory analyzer and alerting engine",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		analyze.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Analyzer.Debug, "debug", "d", viper.GetBool("analyzer.debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Database.SQLite.Path, "db", viper.GetString("database.sqlite.path"), "Path to the SQLite database")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
