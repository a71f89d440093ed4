package main

import (
	"context"
	"time"

	"github.com/eris-chaos/eris/pkg/chaosclient"
	"github.com/eris-chaos/eris/pkg/controller"
	"github.com/eris-chaos/eris/pkg/events"
	"github.com/eris-chaos/eris/pkg/health"
	"github.com/eris-chaos/eris/pkg/log"
	"github.com/eris-chaos/eris/pkg/observability"
	"github.com/eris-chaos/eris/pkg/orchestrator"
	"github.com/eris-chaos/eris/pkg/registry"
	"github.com/eris-chaos/eris/pkg/runner"
	"github.com/eris-chaos/eris/pkg/runtime"
	"github.com/eris-chaos/eris/pkg/telemetry"
	"github.com/eris-chaos/eris/pkg/utils/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	// Log as text with full timestamps, matching the rest of the platform.
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "eris",
		Short: "ERIS chaos experiment control plane",
	}
	rootCmd.AddCommand(controllerCommand())
	rootCmd.AddCommand(runnerCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Command failed, err: %v", err)
	}
}

func controllerCommand() *cobra.Command {
	var listenAddr string
	var otelEndpoint string

	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Run the fault-injection backend service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			shutdown, err := telemetry.InitOTelSDK(ctx, telemetry.OTELControllerServiceName, otelEndpoint)
			if err != nil {
				log.Errorf("Unable to initialise tracing, continuing without it, err: %v", err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Errorf("Tracing shutdown failed, err: %v", err)
				}
			}()

			dockerClient, err := runtime.NewDockerClient()
			if err != nil {
				return err
			}

			promRegistry := prometheus.NewRegistry()
			metrics := observability.NewControllerMetrics(promRegistry)
			ctrl := controller.New(dockerClient, metrics)
			router := controller.NewRouter(ctrl, metrics, promRegistry)

			log.Infof("[PreReq]: Chaos controller listening on %v", listenAddr)
			return router.Run(listenAddr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", common.Getenv("CONTROLLER_LISTEN_ADDR", ":8080"), "listen address")
	cmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", common.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""), "OTLP gRPC endpoint for traces")
	return cmd
}

func runnerCommand() *cobra.Command {
	var listenAddr string
	var prometheusURL string
	var controllerURL string
	var experimentsDir string
	var otelEndpoint string
	var maxFaultMinutes int

	cmd := &cobra.Command{
		Use:   "runner",
		Short: "Run the experiment orchestration service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			shutdown, err := telemetry.InitOTelSDK(ctx, telemetry.OTELRunnerServiceName, otelEndpoint)
			if err != nil {
				log.Errorf("Unable to initialise tracing, continuing without it, err: %v", err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Errorf("Tracing shutdown failed, err: %v", err)
				}
			}()

			evaluator, err := health.NewEvaluator(prometheusURL)
			if err != nil {
				return err
			}

			promRegistry := prometheus.NewRegistry()
			metrics := observability.NewRunnerMetrics(promRegistry)
			recorder := events.NewRecorder(512)
			injector := chaosclient.New(controllerURL, time.Duration(maxFaultMinutes)*time.Minute)
			orch := orchestrator.New(evaluator, injector, recorder, metrics)

			store := registry.NewStore(experimentsDir)
			history := registry.NewHistory()
			service := runner.NewService(store, history, orch, recorder)
			router := runner.NewRouter(service, metrics, promRegistry)

			log.Infof("[PreReq]: Experiment runner listening on %v", listenAddr)
			return router.Run(listenAddr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", common.Getenv("RUNNER_LISTEN_ADDR", ":8081"), "listen address")
	cmd.Flags().StringVar(&prometheusURL, "prometheus-url", common.Getenv("PROMETHEUS_URL", "http://prometheus:9090"), "Prometheus base URL")
	cmd.Flags().StringVar(&controllerURL, "controller-url", common.Getenv("CHAOS_CONTROLLER_URL", "http://chaos-controller:8080"), "chaos controller base URL")
	cmd.Flags().StringVar(&experimentsDir, "experiments-dir", common.Getenv("EXPERIMENTS_DIR", "./experiments"), "directory of experiment definitions")
	cmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", common.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""), "OTLP gRPC endpoint for traces")
	cmd.Flags().IntVar(&maxFaultMinutes, "max-fault-minutes", common.GetenvInt("MAX_FAULT_MINUTES", 10), "upper bound on fault duration, sizes the injection client timeout")
	return cmd
}
