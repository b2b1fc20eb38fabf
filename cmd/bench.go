package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/fetchcore/internal/app"
	"github.com/oshokin/fetchcore/internal/client/fetch"
	"github.com/oshokin/fetchcore/internal/logger"
)

//nolint:gochecknoglobals // Cobra command requires a global definition for proper command-line parsing and execution.
var benchCmd = &cobra.Command{
	Use:   "bench [flags] {url}",
	Short: "Measure sequential and parallel request throughput",
	Long: `Issues the same request a number of times, first one after another,
then all at once, and prints the duration and throughput of both phases.

Use --metrics-addr to expose the engine metrics in Prometheus format while
the benchmark runs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		flags := cmd.Flags()

		req, err := buildRequest(flags, args[0])
		if err != nil {
			logger.Fatalf(ctx, "Failed to parse flags: %v", err)
		}

		iterations, _ := flags.GetInt("iterations")
		noProgress, _ := flags.GetBool("no-progress")
		metricsAddr, _ := flags.GetString("metrics-addr")

		if metricsAddr != "" {
			metricsServer, serverErr := app.StartMetricsServer(ctx, metricsAddr)
			if serverErr != nil {
				logger.Fatalf(ctx, "Failed to start metrics server: %v", serverErr)
			}

			defer func() {
				if stopErr := metricsServer.Stop(ctx); stopErr != nil {
					logger.Warnf(ctx, "Failed to stop metrics server: %v", stopErr)
				}
			}()
		}

		opts := app.BenchOptions{
			Request:    req,
			Iterations: iterations,
		}

		if !noProgress {
			opts.ProgressWriter = os.Stderr
		}

		report, err := app.ExecuteBenchCommand(ctx, fetch.NewHandle(), opts)
		if err != nil {
			logger.Fatalf(ctx, "Benchmark failed: %v", err)
		}

		app.PrintBenchSummary(ctx, report)
	},
}

//nolint:gochecknoinits // Cobra requires the init function to set up commands.
func init() {
	benchFlags := benchCmd.Flags()

	addRequestFlags(benchFlags)

	benchFlags.IntP(
		"iterations",
		"n",
		app.DefaultBenchIterations,
		"number of requests per phase.")

	benchFlags.Bool(
		"no-progress",
		false,
		"disable progress bars.")

	benchFlags.String(
		"metrics-addr",
		"",
		"address to serve Prometheus metrics on, for example: 127.0.0.1:9090.")

	rootCmd.AddCommand(benchCmd)
}
