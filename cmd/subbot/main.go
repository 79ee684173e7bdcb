package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/icceey/pixivbot-sub000/internal/config"
	"github.com/icceey/pixivbot-sub000/internal/ehentai"
	"github.com/icceey/pixivbot-sub000/internal/httpapi"
	"github.com/icceey/pixivbot-sub000/internal/metrics"
	"github.com/icceey/pixivbot-sub000/internal/migrate"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/pixiv"
	"github.com/icceey/pixivbot-sub000/internal/repository/postgres"
	"github.com/icceey/pixivbot-sub000/internal/scheduler"
)

const version = "0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term := os.Getenv("SUBBOT_LOG_FORMAT"); term != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var configPath string

	rootCmd := &cobra.Command{
		Use:     "subbot",
		Short:   "Pixiv/E-Hentai subscription delivery bot",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "subbot.yaml", "path to the YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the poll engines and the health/metrics HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath, true)
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recently applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath, false)
		},
	})
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("subbot exited with error")
	}
}

func runMigrate(configPath string, up bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if up {
		return migrate.Up(db, "migrations", log.Logger)
	}
	return migrate.Down(db, "migrations", log.Logger)
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	store := postgres.New(db, cfg.Database.QueryTimeout())

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	urlIndex := notifier.NewURLIndex(rdb, cfg.Redis.IndexTTL())

	chatClient, err := notifier.NewTelegramClient(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("build telegram client: %w", err)
	}

	cache := notifier.NewFileCache(ctx, cfg.Notifier.CacheDir, cfg.Notifier.CacheRetentionDays, log.Logger)
	n := notifier.New(chatClient, cache, urlIndex, notifier.Config{
		GlobalRPS: cfg.Notifier.GlobalRPS,
		ChatRPS:   cfg.Notifier.ChatRPS,
		ChatBurst: cfg.Notifier.ChatBurst,
	}, log.Logger)

	pixivClient := pixiv.New(cfg.Pixiv.RefreshToken, log.Logger)
	if err := pixivClient.Login(ctx); err != nil {
		return fmt.Errorf("pixiv login: %w", err)
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	authorEngine := scheduler.NewAuthorEngine(store, pixivClient, n, reg,
		cfg.Scheduler.AuthorTickInterval(), cfg.Scheduler.AuthorMinTaskInterval(), cfg.Scheduler.AuthorMaxTaskInterval(),
		cfg.Scheduler.AuthorMaxRetryCount, imageSizeFromConfig(cfg.Scheduler.ImageSize), log.Logger)

	rankingEngine := scheduler.NewRankingEngine(store, pixivClient, n, reg,
		cfg.Scheduler.RankingExecutionHour, cfg.Scheduler.RankingExecutionMinute, log.Logger)

	nameRefreshEngine := scheduler.NewNameRefreshEngine(store, pixivClient, reg,
		cfg.Scheduler.NameRefreshExecutionHour, cfg.Scheduler.NameRefreshExecutionMinute, log.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { authorEngine.Run(gctx); return nil })
	g.Go(func() error { rankingEngine.Run(gctx); return nil })
	g.Go(func() error { nameRefreshEngine.Run(gctx); return nil })

	if cfg.Ehentai.Enabled {
		ehClient, err := buildEhClient(cfg)
		if err != nil {
			return fmt.Errorf("build e-hentai client: %w", err)
		}
		ehEngine := scheduler.NewEhEngine(store, ehClient, n, reg,
			cfg.Scheduler.EhTickInterval(), cfg.Scheduler.EhMinTaskInterval(), cfg.Scheduler.EhMaxTaskInterval(), log.Logger)
		g.Go(func() error { ehEngine.Run(gctx); return nil })
	}

	httpServer := httpapi.NewServer(httpapi.DefaultConfig(cfg.HTTP.ListenAddr), &healthChecker{db: db}, log.Logger)
	g.Go(func() error { return httpServer.Run(gctx) })

	log.Info().Msg("subbot serving")
	return g.Wait()
}

func buildEhClient(cfg *config.Config) (*ehentai.Client, error) {
	ehCfg := ehentai.Config{Source: ehentai.SourceEHentai}
	if cfg.Ehentai.Source == "exhentai" {
		ehCfg.Source = ehentai.SourceExHentai
		ehCfg.Credentials = &ehentai.Credentials{
			MemberID: cfg.Ehentai.Credentials.MemberID,
			PassHash: cfg.Ehentai.Credentials.PassHash,
			Igneous:  cfg.Ehentai.Credentials.Igneous,
		}
	}
	return ehentai.New(ehCfg, log.Logger)
}

func imageSizeFromConfig(s string) pixiv.ImageSize {
	switch s {
	case "large":
		return pixiv.SizeLarge
	case "medium":
		return pixiv.SizeMedium
	case "square_medium":
		return pixiv.SizeSquareMedium
	default:
		return pixiv.SizeOriginal
	}
}

// healthChecker adapts a *sqlx.DB ping into httpapi.HealthChecker.
type healthChecker struct {
	db *sqlx.DB
}

func (h *healthChecker) Check() map[string]httpapi.ComponentStatus {
	status := httpapi.ComponentStatus{Healthy: true}
	if err := h.db.Ping(); err != nil {
		status = httpapi.ComponentStatus{Healthy: false, Detail: err.Error()}
	}
	return map[string]httpapi.ComponentStatus{"database": status}
}
