package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"momento/bot"
	"momento/entity"
	"momento/impl/auth"
	"momento/impl/core"
	"momento/internal/config"
	"momento/internal/database"
	"momento/internal/http-server/api"
	"momento/internal/metrics"
	"momento/internal/ratelimit"
	"momento/internal/storage"
	"momento/lib/logger"
	"momento/lib/sl"
)

const logFileName = "momento.log"

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, filepath.Join(*logPath, logFileName))
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
	).Info("starting momento")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		minLevel := logger.ParseLevel(conf.Telegram.MinLevel, slog.LevelWarn)
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, conf.Telegram.AdminIds, minLevel, log)
		if err != nil {
			log.Error("telegram bot", sl.Err(err))
		} else {
			log = slog.New(logger.NewTelegramHandler(log.Handler(), tgBot, minLevel))
		}
	}

	db, closeDb := openDatabase(ctx, conf, log)
	defer closeDb()

	uploader := openStorage(ctx, conf, log)
	m := metrics.New()

	handler := core.New(db, uploader, m, nil, core.Config{
		StoreTimeout: conf.Limits.StoreTimeout,
		StoreRetries: conf.Limits.StoreRetries,
	}, log)
	handler.SetAuthService(auth.New(db))

	limiter, closeLimiter := openLimiter(ctx, conf, log)
	defer closeLimiter()

	if tgBot != nil {
		tgBot.SetCore(handler)
		go func() {
			if err := tgBot.Start(); err != nil {
				log.Error("telegram bot", sl.Err(err))
			}
		}()
		defer tgBot.Stop()
	}

	log.With(sl.Topic(entity.TopicSystem)).Info("service started")

	err := api.New(ctx, conf, log, handler, api.Deps{
		Limiter:  limiter,
		Metrics:  m,
		Gatherer: m.Registry,
	})
	if err != nil {
		log.Error("server error", sl.Err(err))
	}
	log.Info("service stopped")
}

// Database is what the core and the admin bootstrap need from a store.
type Database interface {
	core.Database
	auth.Database
	SaveUser(ctx context.Context, user *entity.User) error
}

// openDatabase connects to mongo or mysql when one is enabled and falls back
// to the memory store otherwise. The admin from config is saved on every start.
func openDatabase(ctx context.Context, conf *config.Config, log *slog.Logger) (Database, func()) {
	var db Database
	closeFn := func() {}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch {
	case conf.Mongo.Enabled:
		mongo, err := database.NewMongoClient(connectCtx, conf)
		if err != nil {
			log.Error("mongo client", sl.Err(err))
			os.Exit(1)
		}
		log.With(slog.String("host", conf.Mongo.Host)).Info("mongo connected")
		db = mongo
		closeFn = func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongo.Close(closeCtx)
		}
	case conf.MySQL.Enabled:
		sqlDb, err := database.NewSQLClient(connectCtx, conf)
		if err != nil {
			log.Error("mysql client", sl.Err(err))
			os.Exit(1)
		}
		log.With(
			slog.String("host", conf.MySQL.Host),
			slog.String("database", conf.MySQL.Database),
		).Info("mysql connected")
		db = sqlDb
		closeFn = sqlDb.Close
	default:
		log.Warn("no database enabled, using in-memory store")
		db = database.NewMemory()
	}

	if conf.Admin.Token != "" {
		err := db.SaveUser(connectCtx, &entity.User{
			Username:  conf.Admin.Username,
			Name:      conf.Admin.Username,
			Token:     conf.Admin.Token,
			IsAdmin:   true,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Error("save admin user", sl.Err(err))
		}
	}
	return db, closeFn
}

func openStorage(ctx context.Context, conf *config.Config, log *slog.Logger) core.Uploader {
	switch conf.Storage.Provider {
	case "drive":
		d, err := storage.NewDrive(ctx, conf.Storage.CredentialsFile, conf.Storage.RootFolderId)
		if err != nil {
			log.Error("drive storage", sl.Err(err))
			os.Exit(1)
		}
		log.Info("storing uploads in google drive")
		return d
	default:
		l, err := storage.NewLocal(conf.Storage.Directory)
		if err != nil {
			log.Error("local storage", sl.Err(err))
			os.Exit(1)
		}
		log.With(slog.String("directory", conf.Storage.Directory)).Info("storing uploads on disk")
		return l
	}
}

func openLimiter(ctx context.Context, conf *config.Config, log *slog.Logger) (ratelimit.Limiter, func()) {
	rl := ratelimit.Config{
		Limit:  conf.Limits.RateLimitRequests,
		Window: conf.Limits.RateLimitWindow,
	}
	if !conf.Redis.Enabled {
		return ratelimit.NewMemory(rl), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, using in-memory rate limiter", sl.Err(err))
		_ = client.Close()
		return ratelimit.NewMemory(rl), func() {}
	}
	log.With(slog.String("addr", conf.Redis.Addr)).Info("redis connected")
	return ratelimit.NewRedis(client, rl), func() { _ = client.Close() }
}
