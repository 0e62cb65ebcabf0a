package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
	pgloader "livequiz-service/internal/infra/postgres"
	pgmigrations "livequiz-service/internal/infra/postgres/migrations"
	infraredis "livequiz-service/internal/infra/redis"
)

func TestGameRoundEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	loader := pgloader.NewQuizLoader(pool)
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	registry := infraredis.NewRegistry(redisClient, time.Hour)
	clk := clockwork.NewRealClock()
	service := game.NewService(registry, quizRepo, clk, clk, game.SessionOptions{CountdownTicks: 1})

	session, err := service.CreateGame(ctx, "host-1", "quiz-1", nil, nil)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	events, cancel, err := session.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	found, err := service.Lookup(session.PIN())
	if err != nil || found != session {
		t.Fatalf("lookup by pin: %v", err)
	}

	if _, err := session.Join("p1", "Alice"); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if _, err := session.Join("p2", "Bob"); err != nil {
		t.Fatalf("join p2: %v", err)
	}

	if err := session.Start("host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitEvent(t, events, game.EventCountdown)
	awaitEvent(t, events, game.EventQuestion)

	yes := true
	no := false
	if err := session.SubmitAnswer("p1", 0, domain.AnswerValue{Bool: &yes}); err != nil {
		t.Fatalf("submit p1: %v", err)
	}
	if err := session.SubmitAnswer("p2", 0, domain.AnswerValue{Bool: &no}); err != nil {
		t.Fatalf("submit p2: %v", err)
	}
	awaitEvent(t, events, game.EventResults)

	if err := session.NextQuestion("host-1"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	ev := awaitEvent(t, events, game.EventGameFinished)
	winners := ev.Payload.(game.GameFinishedPayload).Winners
	if len(winners) != 2 || winners[0].ID != "p1" {
		t.Fatalf("expected alice leading, got %+v", winners)
	}
	if winners[0].Score < 1000 || winners[1].Score != 0 {
		t.Fatalf("unexpected scores %d/%d", winners[0].Score, winners[1].Score)
	}

	registry.Evict(ctx, session.ID())
	if _, err := service.Lookup(session.PIN()); err == nil {
		t.Fatalf("expected pin released after evict")
	}
}

func awaitEvent(t *testing.T, events <-chan game.Event, want game.EventType) game.Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Warmup",
		Questions: []domain.Question{
			{
				Type:          domain.QuestionTypeTrueFalse,
				Text:          "Is the sky blue?",
				CorrectAnswer: true,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
