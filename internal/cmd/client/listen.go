package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	serverrun "github.com/rzbill/flagstream/internal/cmd/server"
	cfgpkg "github.com/rzbill/flagstream/internal/config"
	"github.com/rzbill/flagstream/internal/eventsource"
	"github.com/rzbill/flagstream/internal/flagsync"
	logpkg "github.com/rzbill/flagstream/pkg/log"
	"github.com/spf13/cobra"
)

// NewListenCommand constructs the `listen` command.
func NewListenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Hold a stream session open and print what it delivers",
		Long: "Connects to the SSE endpoint and prints each delivered message as a JSON line. " +
			"With --config-url, refetch messages trigger a config fetch and the fetched config is printed instead.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := listenConfig(cmd)
			if err != nil {
				return err
			}
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			mode, err := parseFsync(fsyncMode)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			logpkg.RedirectStdLog(logger)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := newLineWriter(cmd.OutOrStdout())
			opts := serverrun.Options{Config: cfg, Logger: logger, Fsync: mode}

			configURL, _ := cmd.Flags().GetString("config-url")
			refetchTimeout, _ := cmd.Flags().GetDuration("refetch-timeout")
			if configURL != "" {
				ref := &flagsync.HTTPRefetcher{URL: configURL, OnConfig: func(body []byte) {
					printConfig(out, body, logger)
				}}
				opts.Handler = flagsync.NewHandler(ref, flagsync.Options{Timeout: refetchTimeout, Logger: logger})
				// Updates missed while suspended are recovered with a plain fetch.
				opts.OnForeground = func() {
					go func() {
						rctx, cancel := context.WithTimeout(ctx, refetchTimeout)
						defer cancel()
						if err := ref.Refetch(rctx, flagsync.Hint{}); err != nil {
							logger.Warn("foreground refetch failed", logpkg.Err(err))
						}
					}()
				}
			} else {
				opts.Handler = printHandler(out, logger)
			}

			if err := serverrun.Run(ctx, opts); err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("config", "", "JSON config file")
	f.String("url", "", "SSE endpoint URL")
	f.StringSlice("header", nil, "Request header as key=value (repeatable)")
	f.String("filter", "", "CEL expression selecting messages (vars: event, id, text, json, size, now_ms)")
	f.Int("admission-limit", 0, "Max signals admitted but not yet delivered (0 = unbounded)")
	f.Duration("initial-reconnect-delay", 0, "Reconnection delay before the server sends retry")
	f.Duration("max-reconnect-delay", 0, "Upper bound on the reconnect backoff")
	f.Duration("read-timeout", 0, "Reconnect when the stream is idle this long (0 disables)")
	f.Duration("inactivity-delay", 0, "Delay between pause and closing the stream")
	f.String("data-dir", "", "Cursor data directory (empty keeps the cursor in memory)")
	f.String("stream-key", "", "Cursor key within the data directory")
	f.Bool("no-resume", false, "Do not send or persist Last-Event-ID")
	f.String("metrics-addr", "", "HTTP status and metrics listen address")
	f.String("health-addr", "", "gRPC health listen address")
	f.String("config-url", "", "Config endpoint to refetch on refetch messages")
	f.Duration("refetch-timeout", 30*time.Second, "Bound on a single config refetch")
	f.String("fsync", "always", "Cursor store fsync mode: always|interval|never")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	return cmd
}

// listenConfig layers defaults, the config file, FLAGSTREAM_* env and
// explicitly set flags, in that order.
func listenConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)

	f := cmd.Flags()
	if f.Changed("url") {
		cfg.URL, _ = f.GetString("url")
	}
	if f.Changed("header") {
		hs, _ := f.GetStringSlice("header")
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, kv := range hs {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return cfgpkg.Config{}, fmt.Errorf("invalid --header %q; expected key=value", kv)
			}
			cfg.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if f.Changed("filter") {
		cfg.Filter, _ = f.GetString("filter")
	}
	if f.Changed("admission-limit") {
		cfg.AdmissionLimit, _ = f.GetInt("admission-limit")
	}
	durFlag := func(name string, dst *cfgpkg.Duration) {
		if f.Changed(name) {
			d, _ := f.GetDuration(name)
			*dst = cfgpkg.Duration(d)
		}
	}
	durFlag("initial-reconnect-delay", &cfg.InitialReconnectDelay)
	durFlag("max-reconnect-delay", &cfg.MaxReconnectDelay)
	durFlag("read-timeout", &cfg.ReadTimeout)
	durFlag("inactivity-delay", &cfg.InactivityDelay)
	if f.Changed("data-dir") {
		cfg.DataDir, _ = f.GetString("data-dir")
	}
	if f.Changed("stream-key") {
		cfg.StreamKey, _ = f.GetString("stream-key")
	}
	if noResume, _ := f.GetBool("no-resume"); noResume {
		cfg.Resume = false
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
	if f.Changed("health-addr") {
		cfg.HealthAddr, _ = f.GetString("health-addr")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.LogFormat, _ = f.GetString("log-format")
	}
	return cfg, cfg.Validate()
}

// printHandler writes every message as a JSON line and logs the rest of the
// session.
func printHandler(out *lineWriter, logger logpkg.Logger) eventsource.Handler {
	return eventsource.HandlerFuncs{
		Open: func() error {
			logger.Info("stream open")
			return nil
		},
		Message: func(event string, m *eventsource.MessageEvent) error {
			return out.write(decodedMessage(event, m))
		},
		Comment: func(text string) error {
			logger.Debug("comment", logpkg.Str("text", text))
			return nil
		},
		Error: func(err error) error {
			logger.Warn("stream error", logpkg.Err(err))
			return nil
		},
		Close: func() error {
			logger.Info("stream closed")
			return nil
		},
	}
}

func printConfig(out *lineWriter, body []byte, logger logpkg.Logger) {
	rec := map[string]any{"config": json.RawMessage(body)}
	if !json.Valid(body) {
		rec = map[string]any{"config_text": string(body)}
	}
	if err := out.write(rec); err != nil {
		logger.Warn("write config failed", logpkg.Err(err))
	}
}
