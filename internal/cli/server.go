package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	syncclock "livequiz-service/internal/clock"
	"livequiz-service/internal/config"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
	"livequiz-service/internal/infra/memory"
	pgloader "livequiz-service/internal/infra/postgres"
	infraredis "livequiz-service/internal/infra/redis"
	transport "livequiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo game.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var registry game.Registry
	if redisClient != nil {
		registry = infraredis.NewRegistry(redisClient, redisTTL)
	} else {
		registry = memory.NewRegistry()
	}

	clk := clockwork.NewRealClock()
	var source syncclock.Source
	if cfg.Clock.SourceURL != "" {
		source = syncclock.NewHTTPSource(cfg.Clock.SourceURL)
	}
	synchronizer := syncclock.NewSynchronizer(clk, source, config.TTLDuration(cfg.Clock.RefreshInterval, 5*time.Minute))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go synchronizer.Run(runCtx)

	service := game.NewService(registry, quizRepo, synchronizer, clk, game.SessionOptions{
		CountdownTicks: cfg.Game.CountdownTicks,
		HostGrace:      config.TTLDuration(cfg.Game.HostGrace, time.Minute),
		FinishedGrace:  config.TTLDuration(cfg.Game.FinishedGrace, 5*time.Minute),
	})
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections outlive any sane value.
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting live quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides a minimal demo set; production swaps the loader for
// the Postgres-backed one via config.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warmup",
			Questions: []domain.Question{
				{
					Type:          domain.QuestionTypeTrueFalse,
					Text:          "The capital of France is Paris.",
					CorrectAnswer: true,
				},
				{
					Type: domain.QuestionTypeStandard,
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4"},
						{Text: "5"},
					},
					CorrectAnswers: []int{1},
				},
			},
		},
	}
}
