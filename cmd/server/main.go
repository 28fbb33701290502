// Command server runs the chat API over HTTP for local development and
// container deployments.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tmc/langchaingo/llms/openai"

	"shopchat/chat"
	"shopchat/log"
	"shopchat/memstore"
	"shopchat/session"
	"shopchat/store"
	"shopchat/store/memory"
	"shopchat/store/postgres"
	"shopchat/store/redis"
	"shopchat/store/sqlite"
	"shopchat/workflow"
)

func main() {
	ctx := context.Background()
	logger := log.NewDefaultLogger(logLevel())
	log.SetDefaultLogger(logger)

	model, err := buildModel()
	if err != nil {
		logger.Error("server: model setup failed: %v", err)
		os.Exit(1)
	}

	sessions, err := buildSessionStore(ctx, logger)
	if err != nil {
		logger.Error("server: session store setup failed: %v", err)
		os.Exit(1)
	}

	checkpoints, err := buildCheckpointStore(ctx)
	if err != nil {
		logger.Error("server: checkpoint store setup failed: %v", err)
		os.Exit(1)
	}

	runner, err := workflow.New(workflow.Options{
		Model:       model,
		Memory:      buildLongTermMemory(),
		Checkpoints: checkpoints,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("server: workflow setup failed: %v", err)
		os.Exit(1)
	}

	svc, err := chat.NewService(chat.Config{
		Store:  sessions,
		Runner: runner,
		Logger: logger,
	})
	if err != nil {
		logger.Error("server: service setup failed: %v", err)
		os.Exit(1)
	}

	addr := ":" + getEnvOrDefault("PORT", "8080")
	logger.Info("server: listening on %s", addr)
	if err := http.ListenAndServe(addr, newRouter(svc)); err != nil {
		logger.Error("server: %v", err)
		os.Exit(1)
	}
}

func buildModel() (*openai.LLM, error) {
	opts := []openai.Option{}
	if base := os.Getenv("OPENAI_API_BASE"); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	if modelName := os.Getenv("OPENAI_MODEL"); modelName != "" {
		opts = append(opts, openai.WithModel(modelName))
	}
	return openai.New(opts...)
}

// buildSessionStore selects DynamoDB when tables are configured, wrapped so
// an unreachable store degrades to memory instead of failing requests.
func buildSessionStore(ctx context.Context, logger log.Logger) (session.Store, error) {
	sessionTable := os.Getenv("SESSION_TABLE")
	historyTable := os.Getenv("HISTORY_TABLE")
	if sessionTable == "" || historyTable == "" {
		logger.Info("server: session tables not configured, using in-memory store")
		return session.NewMemoryStore(), nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	dynamo, err := session.NewDynamoDBStore(awsdynamodb.NewFromConfig(cfg), sessionTable, historyTable)
	if err != nil {
		return nil, err
	}
	return session.NewFallbackStore(ctx, dynamo, session.NewMemoryStore(), "dynamodb", logger), nil
}

// buildLongTermMemory uses Redis when configured, in-process otherwise.
func buildLongTermMemory() memstore.Store {
	if addr := os.Getenv("MEMSTORE_REDIS_ADDR"); addr != "" {
		return memstore.NewRedisStore(memstore.RedisStoreOptions{
			Addr:     addr,
			Password: os.Getenv("MEMSTORE_REDIS_PASSWORD"),
		})
	}
	return memstore.NewMemoryStore()
}

// buildCheckpointStore selects the per-step snapshot backend.
func buildCheckpointStore(ctx context.Context) (store.CheckpointStore, error) {
	switch backend := getEnvOrDefault("CHECKPOINT_BACKEND", "memory"); backend {
	case "memory":
		return memory.NewMemoryCheckpointStore(), nil
	case "sqlite":
		return sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
			Path: getEnvOrDefault("CHECKPOINT_SQLITE_PATH", "checkpoints.db"),
		})
	case "redis":
		return redis.NewRedisCheckpointStore(redis.RedisOptions{
			Addr:     os.Getenv("CHECKPOINT_REDIS_ADDR"),
			Password: os.Getenv("CHECKPOINT_REDIS_PASSWORD"),
		}), nil
	case "postgres":
		s, err := postgres.NewPostgresCheckpointStore(ctx, postgres.PostgresOptions{
			ConnString: os.Getenv("CHECKPOINT_POSTGRES_DSN"),
		})
		if err != nil {
			return nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
}

func newRouter(svc *chat.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/chat", handleChat(svc))
	r.Get("/sessions", handleListSessions(svc))
	r.Get("/sessions/{sessionID}", handleGetSession(svc))
	r.Delete("/sessions/{sessionID}", handleDeleteSession(svc))
	r.Get("/health", handleHealth(svc))
	return r
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func handleChat(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.Chat(r.Context(), req.Message, req.SessionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleListSessions(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		sessions, err := svc.ListSessions(r.Context(), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	}
}

func handleGetSession(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.GetSessionWithHistory(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func handleDeleteSession(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleHealth(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health(r.Context()))
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "error processing request")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func logLevel() log.LogLevel {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return log.LogLevelDebug
	case "warn":
		return log.LogLevelWarn
	case "error":
		return log.LogLevelError
	default:
		return log.LogLevelInfo
	}
}
