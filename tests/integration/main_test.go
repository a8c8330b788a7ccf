//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/blamelessops/postmortem-tracker/internal/app"
	"github.com/blamelessops/postmortem-tracker/internal/config"
	"github.com/blamelessops/postmortem-tracker/internal/testutil"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool

	// Fake chat completions upstream. Tests set its reply per scenario.
	generationUpstream *fakeGenerationServer
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

// fakeGenerationServer mimics an OpenAI-compatible chat completions
// endpoint with a swappable canned reply.
type fakeGenerationServer struct {
	mu     sync.Mutex
	server *httptest.Server
	reply  string
	status int
}

func newFakeGenerationServer() *fakeGenerationServer {
	f := &fakeGenerationServer{reply: "canned reply", status: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		reply, status := f.reply, f.status
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": "simulated upstream failure"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": reply}},
			},
		})
	}))
	return f
}

func (f *fakeGenerationServer) respond(reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = reply
	f.status = http.StatusOK
}

func (f *fakeGenerationServer) fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = http.StatusServiceUnavailable
}

// newTestClient creates a test client with OpenAPI validation enabled
// and a default principal. Use at the beginning of each test.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	client.ActAs(t, "u-integration", "integration-bot", "authenticated")
	return client
}

// newAnonymousClient creates a test client without a principal header.
func newAnonymousClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	migrator, err := migrate.New(
		"file://../../migrations",
		pgContainer.ConnectionString,
	)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("run migrations: %v", err)
	}

	generationUpstream = newFakeGenerationServer()
	defer generationUpstream.server.Close()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Database.URL = pgContainer.ConnectionString
	cfg.Database.MaxOpenConns = 5
	cfg.Database.ConnectAttempts = 3
	cfg.Database.Migrate = false // already migrated above
	cfg.Log.Level = "error"
	cfg.Log.Format = "text"
	cfg.AI.BaseURL = generationUpstream.server.URL
	cfg.AI.APIKey = "test-key"
	cfg.AI.Fallback = true
	cfg.AI.RateLimit = 1000 // effectively unlimited for tests
	cfg.AI.RateBurst = 1000

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
