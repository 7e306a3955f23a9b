package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/forum-feed/api"
	"github.com/brettboylen/forum-feed/db"
	"github.com/brettboylen/forum-feed/feed"
	"github.com/brettboylen/forum-feed/server"
	"github.com/brettboylen/forum-feed/stats"
	"github.com/brettboylen/forum-feed/utils"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "debug", "Logging level (debug, info, warn, error)")
	flag.Parse()

	log := setupLogger(*logLevel)
	log.Info("Starting Forum Feed")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"store_driver":     config.Store.Driver,
		"refresh_interval": config.Feed.RefreshInterval,
		"server_port":      config.Server.Port,
		"signed_in":        config.Feed.UserID != "",
	}).Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, config, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open post store")
	}
	defer closeStore()

	identity := feed.NewCurrentUser(config.Feed.UserID)
	notices := feed.NewNoticeBoard(time.Duration(config.Feed.NoticeTTLSeconds) * time.Second)

	session := feed.NewSession(
		feed.NewAggregator(store, identity, log),
		feed.NewMutator(store, log),
		identity,
		notices,
		feed.SessionOptions{
			RefreshInterval:  time.Duration(config.Feed.RefreshInterval) * time.Second,
			RefreshAfterLike: config.Feed.RefreshAfterLike,
			OnRefresh: func(state feed.SessionState) {
				summary := stats.Summarize(state, stats.DefaultTopPostsLimit, stats.DefaultTopCreatorsLimit, time.Now())
				stats.LogStatistics(log, summary)
			},
		},
		log,
	)

	srv := server.New(
		session,
		feed.NewMemoryFilterStore(),
		feed.NewComments(store, identity, notices, config.Feed.CommentsPageSize, time.Now, log),
		notices,
		server.Options{MaxRequestsPerMinute: config.Store.MaxRequestsPerMinute},
		log,
	)

	go func() {
		if err := srv.Run(ctx, config.Server.Port); err != nil {
			log.WithError(err).Fatal("API server stopped unexpectedly")
		}
	}()

	go func() {
		if err := session.Start(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Error("Feed session stopped unexpectedly")
		}
	}()

	waitForShutdown(cancel, log)
}

// openStore connects the configured post store and returns its cleanup func
func openStore(ctx context.Context, config *utils.Config, log *logrus.Logger) (feed.Store, func(), error) {
	switch config.Store.Driver {
	case utils.DriverSQLite:
		database, err := db.NewSQLiteStore(config.Database.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return database, func() { database.Close() }, nil
	case utils.DriverPostgres:
		database, err := db.NewPostgresStore(ctx, config.Postgres.DSN, config.Postgres.MaxConns, log)
		if err != nil {
			return nil, nil, err
		}
		return database, func() { database.Close() }, nil
	case utils.DriverRemote:
		client := api.NewClient(
			config.Store.URL,
			config.Store.APIKey,
			time.Duration(config.Store.TimeoutSeconds)*time.Second,
			config.Store.MaxRequestsPerMinute,
			log,
		)
		return client, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
}

// setupLogger sets up the logger with the specified log level
func setupLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// waitForShutdown waits for a shutdown signal
func waitForShutdown(cancel context.CancelFunc, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	cancel()

	time.Sleep(1 * time.Second)
	log.Info("Forum Feed stopped")
}
