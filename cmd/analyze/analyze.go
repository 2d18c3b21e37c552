// Package analyze implements the one-shot evaluation command.
package analyze

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldsight/fieldsight-go/internal/alerting"
	"github.com/fieldsight/fieldsight-go/internal/analyzer"
	"github.com/fieldsight/fieldsight-go/internal/conf"
	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/envdata"
	"github.com/fieldsight/fieldsight-go/internal/schema"
)

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var subjectID string
	var dispatch bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run analyzers once and exit",
		Long:  "Evaluate analyzer configs for one subject, or for every subject with an active config, then exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), settings, subjectID, dispatch)
		},
	}

	cmd.Flags().StringVar(&subjectID, "subject", "", "Subject id to evaluate; empty evaluates all subjects with active configs")
	cmd.Flags().BoolVar(&dispatch, "dispatch", viper.GetBool("analyzer.dispatch"), "Evaluate alert rules and send notifications for created events")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func runOnce(ctx context.Context, settings *conf.Settings, subjectID string, dispatch bool) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() { _ = store.Close() }()

	var env analyzer.EnvironmentalSampler
	if client := envdata.New(settings); client != nil {
		env = client
	}
	runner := analyzer.NewRunner(store, env, nil)

	var alerts *alerting.Service
	if dispatch {
		alerts = alerting.NewService(store,
			alerting.SinksFromConfig(settings),
			schema.StaticProvider{}, nil,
			settings.Alerting.SiteName, settings.Alerting.SiteURL)
	}

	subjects, err := targetSubjects(store, subjectID)
	if err != nil {
		return err
	}

	var created int
	for _, subject := range subjects {
		events, err := runner.EvaluateSubject(ctx, subject.ID)
		if err != nil {
			fmt.Printf("subject %s: %v\n", subject.Name, err)
			continue
		}
		for _, ev := range events {
			created++
			fmt.Printf("subject %s: event %s created\n", subject.Name, ev.EventID)
			if alerts != nil {
				if err := alerts.EvaluateAlertRules(ctx, ev.EventID, true); err != nil {
					fmt.Printf("subject %s: alert evaluation failed: %v\n", subject.Name, err)
				}
			}
		}
	}

	fmt.Printf("evaluated %d subject(s), %d event(s) created\n", len(subjects), created)
	return nil
}

func targetSubjects(store datastore.Interface, subjectID string) ([]datastore.Subject, error) {
	if subjectID == "" {
		return store.SubjectsWithActiveConfigs()
	}
	subject, err := store.GetSubject(subjectID)
	if err != nil {
		return nil, fmt.Errorf("getting subject %s: %w", subjectID, err)
	}
	return []datastore.Subject{subject}, nil
}
