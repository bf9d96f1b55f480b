package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smolin/procwarden/cmd"
	"github.com/smolin/procwarden/internal/api"
	"github.com/smolin/procwarden/internal/config"
	"github.com/smolin/procwarden/internal/events"
	"github.com/smolin/procwarden/internal/logging"
	"github.com/smolin/procwarden/internal/metrics"
	"github.com/smolin/procwarden/internal/supervisor"
	"github.com/smolin/procwarden/internal/watch"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// App spec
	Spec string `help:"Path to the app spec file" short:"s" default:"app.toml" toml:"app.spec" env:"APP_SPEC"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":9820" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings; both empty disables auth
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsEnabled           bool `help:"Enable Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsSampleIntervalSec int  `help:"Child resource sampling interval in seconds" default:"5" toml:"metrics.sample_interval_sec" env:"METRICS_SAMPLE_INTERVAL_SEC"`

	// Watch settings
	WatchDebounceMs int `help:"Settle window for watch-triggered restarts in milliseconds" default:"1500" toml:"watch.debounce_ms" env:"WATCH_DEBOUNCE_MS"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingChild      string `help:"Child output logging level" default:"info" toml:"logging.child" env:"LOGGING_CHILD"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingWatch      string `help:"File watcher logging level" default:"info" toml:"logging.watch" env:"LOGGING_WATCH"`
	LoggingMetrics    string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
}

func main() {
	// Captured so the callback can hand the parsed flag set to the config
	// loader; flags set explicitly on the command line must never be
	// overwritten by file or environment values.
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"child":      opts.LoggingChild,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
				"watch":      opts.LoggingWatch,
				"metrics":    opts.LoggingMetrics,
			},
		})
		logger := logging.GetLogger("main")

		spec, err := config.LoadAppSpec(opts.Spec)
		if err != nil {
			logger.Error("Cannot load app spec", "path", opts.Spec, "error", err)
			os.Exit(1)
		}

		eventBus := events.New()

		var sampler *metrics.Sampler
		var unbindMetrics func()
		var promHandler http.Handler
		if opts.MetricsEnabled {
			unbindMetrics = metrics.Bind(eventBus)
			sampler = metrics.NewSampler(spec.Name, eventBus,
				metrics.WithSampleInterval(time.Duration(opts.MetricsSampleIntervalSec)*time.Second))
			promHandler = metrics.Handler()
		}

		sup := supervisor.New(spec, supervisor.Options{Bus: eventBus})

		var watcher *watch.Watcher
		if spec.Watch {
			watcher = watch.New(spec.EffectiveWatchPaths(), func(path string) {
				logger.Info("Watched files changed, restarting app", "path", path)
				if restartErr := sup.Restart(); restartErr != nil {
					logger.Warn("Watch-triggered restart skipped", "error", restartErr)
				}
			}, watch.WithDebounce(time.Duration(opts.WatchDebounceMs)*time.Millisecond))
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Supervisor:        sup,
			Bus:               eventBus,
			PrometheusHandler: promHandler,
		})

		hooks.OnStart(func() {
			if startErr := sup.Start(); startErr != nil {
				logger.Error("Failed to start supervision", "app", spec.Name, "error", startErr)
				os.Exit(1)
			}

			if sampler != nil {
				sampler.Start()
			}
			if watcher != nil {
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Failed to start file watcher", "error", watchErr)
				}
			}

			// The daemon stays up after the app fails permanently so the
			// API can report the failure.
			go func() {
				if waitErr := sup.Wait(); waitErr != nil {
					logger.Error("Supervision ended", "app", spec.Name, "error", waitErr)
				} else {
					logger.Info("Supervision ended", "app", spec.Name)
				}
			}()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if serveErr := server.Start(opts.Port); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", serveErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Error("Error stopping file watcher", "error", stopErr)
				}
			}
			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := sup.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping supervision", "error", stopErr)
			}
			if sampler != nil {
				sampler.Stop()
			}
			if unbindMetrics != nil {
				unbindMetrics()
			}
		})
	})

	root := cli.Root()
	root.Use = "procwarden"
	root.AddCommand(cmd.CreateValidateCmd())
	root.AddCommand(cmd.CreateStatusCmd())

	cli.Run()
}
