package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quicktestly/internal/app"
	"quicktestly/internal/config"
	"quicktestly/internal/infra/amqp"
	"quicktestly/internal/infra/memory"
	mongostore "quicktestly/internal/infra/mongo"
	pgstore "quicktestly/internal/infra/postgres"
	redisstore "quicktestly/internal/infra/redis"
	"quicktestly/internal/logger"
	"quicktestly/internal/metrics"
	transport "quicktestly/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if level == "" && cfg.Server.Mode == "debug" {
		level = "debug"
	}
	return logger.New(logger.Options{Level: level, File: cfg.Log.File})
}

// stores bundles the persistence backends selected by config.
type stores struct {
	quizzes app.QuizStore
	results app.ResultStore
	close   func()
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return stores{}, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		return stores{
			quizzes: pgstore.NewQuizStore(pool),
			results: pgstore.NewResultStore(pool),
			close:   pool.Close,
		}, nil
	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return stores{}, err
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			log.Warn("mongo indexes not created", zap.Error(err))
		}
		return stores{
			quizzes: mongostore.NewQuizStore(db),
			results: mongostore.NewResultStore(db),
			close:   func() { _ = client.Disconnect(context.Background()) },
		}, nil
	default:
		return stores{
			quizzes: memory.NewQuizStore(),
			results: memory.NewResultStore(),
			close:   func() {},
		}, nil
	}
}

// attemptStore is what the server needs from the live attempt registry.
type attemptStore interface {
	app.AttemptRepository
	transport.LiveCounter
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var attempts attemptStore
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, st.quizzes, quizTTL, log)
		attempts = redisstore.NewAttemptStore(redisClient, time.Hour, log)
	} else {
		quizRepo = memory.NewQuizRepository(st.quizzes, quizTTL)
		attempts = memory.NewAttemptStore()
	}

	m := metrics.New()
	hub := app.NewLeaderboardHub(st.results, cfg.Leaderboard.Limit, log)

	attemptOpts := []app.AttemptOption{
		app.WithHub(hub),
		app.WithRecorder(m),
		app.WithForwardOnly(cfg.Attempt.ForwardOnly),
		app.WithTickSource(app.EveryTicker(config.TTLDuration(cfg.Attempt.TickInterval, time.Second))),
		app.WithPersistTimeout(config.TTLDuration(cfg.Attempt.PersistTimeout, 10*time.Second)),
	}
	if cfg.AMQP.URL != "" {
		publisher, err := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		attemptOpts = append(attemptOpts, app.WithPublisher(publisher))
	}

	quizService := app.NewQuizService(st.quizzes, quizRepo, st.results, log)
	attemptService := app.NewAttemptService(quizRepo, st.results, attempts, log, attemptOpts...)

	done := make(chan struct{})
	defer close(done)

	handler := transport.NewHandler(quizService, attemptService, hub, attempts, transport.NewAuthenticator(cfg.Auth.JWTSecret), log)
	router := handler.Router(transport.RouterOptions{
		Mode:        cfg.Server.Mode,
		CORSOrigins: cfg.CORS.Origins,
		RateLimit:   cfg.RateLimit.Requests,
		RateWindow:  config.TTLDuration(cfg.RateLimit.Window, time.Minute),
		Metrics:     m,
		Done:        done,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort), zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	attemptService.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
