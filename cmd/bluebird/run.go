package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"bluebird/internal/config"
	"bluebird/internal/logging"
	"bluebird/internal/notifier"
	"bluebird/internal/notifier/discord"
	"bluebird/internal/notifier/telegram"
	"bluebird/internal/publisher"
	"bluebird/internal/scheduler"
	"bluebird/internal/source/rss"
	"bluebird/internal/source/vx"
	"bluebird/internal/storage/archive"
	"bluebird/internal/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start watching every configured account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		}()

		return run(ctx, cfg, logger)
	},
}

// Source serves both the watch loops and related-post lookups.
type Source interface {
	watcher.Fetcher
	notifier.Fetcher
}

func loadConfig() (*config.Config, error) {
	path, err := config.Path(flagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	src := newSource(cfg, logger)

	var shared []notifier.Sink

	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()
		shared = append(shared, rabbitMQ)
	}

	if cfg.Archive.Enabled {
		db, err := archive.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN())
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("connected to archive", "driver", cfg.Archive.Driver)
		shared = append(shared, archive.NewStore(db, logger))
	}

	var bot telegram.Sender
	if cfg.Telegram.Enabled {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("connect to telegram: %w", err)
		}
		logger.Info("connected to telegram", "bot", api.Self.UserName)
		bot = api
	}

	loops, err := buildLoops(cfg, src, shared, bot, logger)
	if err != nil {
		return err
	}

	sup := scheduler.New(loops, scheduler.Options{
		JitterMin:    cfg.Watch.SpawnJitterMin,
		JitterMax:    cfg.Watch.SpawnJitterMax,
		RestartDelay: cfg.Watch.RestartDelay,
		Watchdog:     cfg.Systemd.Watchdog,
	}, logger)

	logger.Info("starting bluebird",
		"version", version,
		"source", cfg.Source.Type,
		"accounts", len(loops),
	)

	if err := sup.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newSource(cfg *config.Config, logger *slog.Logger) Source {
	if cfg.Source.Type == config.SourceRSS {
		return rss.New(rss.Config{
			BaseURL:   cfg.Source.BaseURL,
			Timeout:   cfg.Source.Timeout,
			UserAgent: cfg.Source.UserAgent,
		}, logger)
	}
	return vx.New(vx.Config{
		BaseURL:           cfg.Source.BaseURL,
		Timeout:           cfg.Source.Timeout,
		UserAgent:         cfg.Source.UserAgent,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
		MaxAttempts:       cfg.Source.Retry.MaxAttempts,
		InitialBackoff:    cfg.Source.Retry.InitialBackoff,
		MaxBackoff:        cfg.Source.Retry.MaxBackoff,
	}, logger)
}

// buildLoops creates one watcher per username. Instances that fail
// validation are logged and skipped.
func buildLoops(
	cfg *config.Config,
	src Source,
	shared []notifier.Sink,
	bot telegram.Sender,
	logger *slog.Logger,
) ([]scheduler.Loop, error) {
	accent, err := cfg.Discord.AccentColorValue()
	if err != nil {
		return nil, err
	}
	// One limiter for every webhook keeps the process under Discord's global limit.
	webhookLimiter := rate.NewLimiter(rate.Limit(cfg.Discord.RequestsPerSecond), 1)

	opts := watcher.Options{
		DefaultInterval: cfg.Watch.DefaultInterval,
		MinInterval:     cfg.Watch.MinInterval,
		Seed:            cfg.Debug.State,
	}

	var loops []scheduler.Loop
	for i, inst := range cfg.Instances {
		instLogger := logger.With("instance", i)

		if err := inst.Validate(); err != nil {
			instLogger.Error("skipping invalid instance", "error", err)
			continue
		}

		sinks := append([]notifier.Sink{}, shared...)
		if inst.DiscordWebhookURL != "" {
			hook, err := discord.New(discord.Config{
				URL:         inst.DiscordWebhookURL,
				Username:    cfg.Discord.Username,
				AvatarURL:   cfg.Discord.AvatarURL,
				AccentColor: accent,
			}, webhookLimiter, instLogger)
			if err != nil {
				instLogger.Error("skipping invalid instance", "error", err)
				continue
			}
			sinks = append(sinks, hook)
		}
		if inst.TelegramChatID != 0 {
			if bot == nil {
				instLogger.Warn("telegram chat configured but telegram is disabled")
			} else {
				sinks = append(sinks, telegram.New(bot, inst.TelegramChatID, instLogger))
			}
		}
		if len(sinks) == 0 {
			instLogger.Warn("instance has no destinations, posts will only be logged")
		}

		n := notifier.New(src, sinks, instLogger)
		for _, username := range inst.Usernames {
			loops = append(loops, watcher.New(username, src, n, inst.Filter(), opts, instLogger))
		}
	}

	if len(loops) == 0 {
		return nil, errors.New("no valid instances configured")
	}

	return loops, nil
}
