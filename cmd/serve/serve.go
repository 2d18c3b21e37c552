// Package serve implements the long-running service command: worker pool,
// periodic analyzer passes, auto-resolve sweep and the telemetry endpoint.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldsight/fieldsight-go/internal/alerting"
	"github.com/fieldsight/fieldsight-go/internal/analyzer"
	"github.com/fieldsight/fieldsight-go/internal/conf"
	"github.com/fieldsight/fieldsight-go/internal/datastore"
	"github.com/fieldsight/fieldsight-go/internal/envdata"
	"github.com/fieldsight/fieldsight-go/internal/logging"
	"github.com/fieldsight/fieldsight-go/internal/observability"
	"github.com/fieldsight/fieldsight-go/internal/schema"
	"github.com/fieldsight/fieldsight-go/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analyzer and alerting service",
		Long:  "Evaluate analyzer configs for active subjects on a schedule, resolve stale events and dispatch alert notifications.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of the telemetry endpoint")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable the Prometheus telemetry endpoint")
	cmd.Flags().IntVar(&settings.Analyzer.Workers, "workers", viper.GetInt("analyzer.workers"), "Number of concurrent task workers")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func runService(settings *conf.Settings) error {
	logger := logging.ForService("serve")

	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close datastore", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	var env analyzer.EnvironmentalSampler
	if client := envdata.New(settings); client != nil {
		env = client
	}

	runner := analyzer.NewRunner(store, env, metrics.Analyzer)
	alerts := alerting.NewService(store,
		alerting.SinksFromConfig(settings),
		schema.StaticProvider{},
		metrics.Alerting,
		settings.Alerting.SiteName, settings.Alerting.SiteURL)

	engine := worker.NewEngine(store, runner, alerts, &settings.Analyzer, metrics.Worker)
	engine.Start()
	engine.StartPeriodicEvaluation(settings.Analyzer.EvaluationInterval)
	engine.StartAutoResolveSweep(settings.Analyzer.AutoResolveInterval)

	var telemetry *http.Server
	if settings.Telemetry.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		telemetry = &http.Server{
			Addr:              settings.Telemetry.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("telemetry endpoint listening", "addr", settings.Telemetry.Listen)
			if err := telemetry.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("telemetry endpoint failed", "error", err)
			}
		}()
	}

	logger.Info("service started",
		"workers", settings.Analyzer.Workers,
		"evaluation_interval", settings.Analyzer.EvaluationInterval,
		"auto_resolve_interval", settings.Analyzer.AutoResolveInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", "signal", sig.String())

	if telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}
	return engine.Shutdown(shutdownTimeout)
}
