package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oshokin/fetchcore/internal/app"
	"github.com/oshokin/fetchcore/internal/client/fetch"
	"github.com/oshokin/fetchcore/internal/config"
	"github.com/oshokin/fetchcore/internal/engine"
	"github.com/oshokin/fetchcore/internal/logger"
)

// ErrInvalidHeader indicates a --header value that is not in "Name: Value" form.
var ErrInvalidHeader = errors.New("header must be in 'Name: Value' form")

var (
	//nolint:gochecknoglobals // It is required for configuration initialization before the application starts.
	configFilenameFromFlag string

	//nolint:gochecknoglobals,lll // It is initialized once during the application's startup and shared across the command execution logic.
	appConfig *config.Config

	//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
	rootCmd = &cobra.Command{
		Use:   "fetchcore [flags] {url}",
		Short: "Perform an HTTP request through the pooled fetch engine.",
		Long: `fetchcore performs HTTP requests through a shared connection pool
driven by a fixed set of worker goroutines.

The result is printed with its status, headers, final URL and body.
Headers may be repeated and are sent in the order given.
Passing --data, even with an empty value, sends a request body.`,
		Args:             cobra.ExactArgs(1),
		PersistentPreRun: initConfig,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()

			req, err := buildRequest(cmd.Flags(), args[0])
			if err != nil {
				logger.Fatalf(ctx, "Failed to parse flags: %v", err)
			}

			outputFlag, _ := cmd.Flags().GetString("output")

			format, err := app.ParseOutputFormat(outputFlag)
			if err != nil {
				logger.Fatalf(ctx, "Failed to parse flags: %v", err)
			}

			if err = app.ExecuteFetchCommand(ctx, fetch.NewHandle(), req, format, cmd.OutOrStdout()); err != nil {
				logger.Fatalf(ctx, "Request failed: %v", err)
			}
		},
	}
)

// Execute executes the root command.
func Execute() {
	signals := []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)

	defer func() {
		_ = logger.Logger().Sync()
	}()

	defer stop()

	go func() {
		defer stop()

		err := rootCmd.ExecuteContext(ctx)
		cobra.CheckErr(err)
	}()

	<-ctx.Done()
}

//nolint:gochecknoinits // Cobra requires the init function to set up flags before the command is executed.
func init() {
	rootPersistentFlags := rootCmd.PersistentFlags()

	rootPersistentFlags.StringVarP(
		&configFilenameFromFlag,
		"config",
		"c",
		"",
		fmt.Sprintf("path to the configuration file (default is '%s')",
			config.DefaultConfigFilename))

	rootPersistentFlags.StringP(
		"body-mode",
		"b",
		"",
		"response body mode: text (decoded to UTF-8) or bytes (raw).")

	rootPersistentFlags.Int(
		"worker-threads",
		0,
		"number of engine worker goroutines (0 = one per CPU).")

	rootPersistentFlags.String(
		"log-level",
		"",
		"log level: debug, info, warn, error.")

	addRequestFlags(rootCmd.Flags())

	rootCmd.Flags().StringP(
		"output",
		"o",
		string(app.OutputJSON),
		"output format: json, yaml or raw (body only).")
}

// addRequestFlags registers the flags describing one request.
func addRequestFlags(flags *pflag.FlagSet) {
	flags.StringP(
		"method",
		"X",
		"",
		"HTTP method (default GET, or POST when --data is given).")

	flags.StringArrayP(
		"header",
		"H",
		nil,
		"request header in 'Name: Value' form; may be repeated.")

	flags.StringP(
		"data",
		"d",
		"",
		"request body; '@path' reads it from a file. An empty value sends an empty body.")

	flags.StringP(
		"redirect",
		"r",
		"follow",
		"redirect policy: follow, manual or error.")

	flags.String(
		"credentials",
		"omit",
		"cookie handling: omit, same-origin or include.")

	flags.DurationP(
		"timeout",
		"t",
		0,
		"request timeout, for example: 500ms, 10s (0 = configured default).")
}

func initConfig(cmd *cobra.Command, _ []string) {
	var err error

	appConfig, err = config.LoadConfig(configFilenameFromFlag)
	if err != nil {
		logger.Fatalf(cmd.Context(), "Failed to load configuration: %v", err)
	}

	if err = bindFlagsToConfig(cmd.Flags(), appConfig); err != nil {
		logger.Fatalf(cmd.Context(), "Failed to parse flags: %v", err)
	}

	if err = app.ConfigureEngine(cmd.Context(), appConfig); err != nil {
		logger.Fatalf(cmd.Context(), "Failed to configure engine: %v", err)
	}
}

func bindFlagsToConfig(flags *pflag.FlagSet, cfg *config.Config) error {
	if flag := flags.Lookup("body-mode"); flag != nil && flag.Changed {
		cfg.BodyMode, _ = flags.GetString("body-mode")
	}

	if flag := flags.Lookup("worker-threads"); flag != nil && flag.Changed {
		cfg.WorkerThreads, _ = flags.GetInt("worker-threads")
	}

	if flag := flags.Lookup("log-level"); flag != nil && flag.Changed {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return config.ValidateConfig(cfg)
}

// buildRequest assembles a request from the request flags and the target URL.
func buildRequest(flags *pflag.FlagSet, url string) (engine.Request, error) {
	req := engine.Request{URL: url}

	method, _ := flags.GetString("method")

	if flag := flags.Lookup("data"); flag != nil && flag.Changed {
		data, _ := flags.GetString("data")

		payload, err := parsePayload(data)
		if err != nil {
			return engine.Request{}, err
		}

		req.Body = payload

		if method == "" {
			method = "POST"
		}
	}

	if method == "" {
		method = "GET"
	}

	req.Method = method

	rawHeaders, _ := flags.GetStringArray("header")
	for _, rawHeader := range rawHeaders {
		header, err := parseHeader(rawHeader)
		if err != nil {
			return engine.Request{}, err
		}

		req.Headers = append(req.Headers, header)
	}

	redirect, _ := flags.GetString("redirect")

	policy, err := engine.ParseRedirectPolicy(redirect)
	if err != nil {
		return engine.Request{}, err
	}

	req.Redirect = policy

	credentials, _ := flags.GetString("credentials")

	req.Credentials, err = engine.ParseCredentialsMode(credentials)
	if err != nil {
		return engine.Request{}, err
	}

	req.Timeout, _ = flags.GetDuration("timeout")

	return req, nil
}

func parseHeader(raw string) (engine.Header, error) {
	name, value, found := strings.Cut(raw, ":")

	name = strings.TrimSpace(name)
	if !found || name == "" {
		return engine.Header{}, fmt.Errorf("%w: '%s'", ErrInvalidHeader, raw)
	}

	return engine.Header{Name: name, Value: strings.TrimSpace(value)}, nil
}

func parsePayload(data string) (engine.Payload, error) {
	path, isFile := strings.CutPrefix(data, "@")
	if !isFile {
		return engine.TextPayload(data), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return engine.Payload{}, fmt.Errorf("failed to read request body: %w", err)
	}

	return engine.BytesPayload(content), nil
}
