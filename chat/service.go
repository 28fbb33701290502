// Package chat is the externally consumed service boundary: it hydrates
// session history, runs the workflow, and persists the completed exchange.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"

	"shopchat/log"
	"shopchat/session"
	"shopchat/workflow"
)

// historyLimit is how many persisted messages are replayed into a run.
const historyLimit = 20

// maxThreads bounds the session-to-thread continuation map. Oldest entries
// are evicted first; an evicted session simply starts a fresh thread on its
// next message.
const maxThreads = 1024

// ErrEmptyMessage rejects chat requests without content.
var ErrEmptyMessage = errors.New("message is required")

// Runner executes one workflow run. Satisfied by *workflow.Workflow.
type Runner interface {
	Run(ctx context.Context, history []workflow.Message, message string, threadID string) (*workflow.RunResult, error)
}

// Config configures a Service.
type Config struct {
	Store  session.Store
	Runner Runner
	Logger log.Logger
}

// Service wires the workflow to session persistence.
type Service struct {
	store  session.Store
	runner Runner
	logger log.Logger

	mu      sync.Mutex
	threads map[string]string
	order   []string
}

// NewService creates the chat service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("chat: store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("chat: runner is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetDefaultLogger()
	}
	return &Service{
		store:   cfg.Store,
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		threads: make(map[string]string),
	}, nil
}

// Response is the chat invocation result.
type Response struct {
	Response     string   `json:"response"`
	SessionID    string   `json:"session_id"`
	WorkflowPath []string `json:"workflow_path"`
	IntentType   string   `json:"intent_type,omitempty"`
	FinalAgent   string   `json:"final_agent,omitempty"`
}

// Chat handles one user message. A missing session identifier creates a new
// session; an unknown one is created under the supplied identifier. The
// completed exchange is persisted as two messages tagged with the run's path
// metadata. Persistence after the run is at-most-once per step: a crash
// between run and persist loses the exchange rather than duplicating it.
func (s *Service) Chat(ctx context.Context, message, sessionID string) (*Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := s.ensureSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	persisted, err := s.store.GetMessages(ctx, sess.SessionID, historyLimit)
	if err != nil {
		return nil, err
	}
	history := toWorkflowHistory(persisted)

	result, err := s.runner.Run(ctx, history, message, s.threadFor(sess.SessionID))
	if err != nil {
		return nil, err
	}

	meta := map[string]string{
		"workflow_path": strings.Join(result.Path, ","),
		"intent_type":   string(result.Intent),
		"final_agent":   result.FinalAgent,
	}
	if err := s.store.AddMessage(ctx, &session.ChatMessage{
		SessionID: sess.SessionID,
		Role:      "user",
		Content:   message,
		Metadata:  meta,
	}); err != nil {
		return nil, err
	}
	if err := s.store.AddMessage(ctx, &session.ChatMessage{
		SessionID: sess.SessionID,
		Role:      "assistant",
		Content:   result.Response,
		Metadata:  meta,
	}); err != nil {
		return nil, err
	}

	return &Response{
		Response:     result.Response,
		SessionID:    sess.SessionID,
		WorkflowPath: result.Path,
		IntentType:   string(result.Intent),
		FinalAgent:   result.FinalAgent,
	}, nil
}

// ensureSession loads or creates the session for this request.
func (s *Service) ensureSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return s.store.CreateSession(ctx, "", nil)
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return s.store.CreateSession(ctx, sessionID, nil)
	}
	return sess, err
}

// ListSessions returns sessions sorted by most recent activity.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	return s.store.ListSessions(ctx, limit)
}

// SessionDetail is a session together with its recent history.
type SessionDetail struct {
	Session  *session.Session      `json:"session"`
	Messages []session.ChatMessage `json:"messages"`
}

// GetSessionWithHistory returns one session and its recent messages.
func (s *Service) GetSessionWithHistory(ctx context.Context, sessionID string) (*SessionDetail, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.GetMessages(ctx, sessionID, session.DefaultMessageLimit)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: sess, Messages: msgs}, nil
}

// DeleteSession removes a session, its messages and its continuation thread.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	s.dropThread(sessionID)
	s.mu.Unlock()
	return nil
}

// Health reports store reachability and degradation state.
type Health struct {
	Status string         `json:"status"`
	Store  session.Status `json:"store"`
}

// Health checks the persistence layer.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Store: session.Status{Backend: "memory"}}
	if reporter, ok := s.store.(interface{ Status() session.Status }); ok {
		h.Store = reporter.Status()
	}
	if err := s.store.Ping(ctx); err != nil {
		h.Status = "degraded"
	}
	if h.Store.Degraded {
		h.Status = "degraded"
	}
	return h
}

// threadFor returns the stable continuation identifier of a session,
// creating one when absent and evicting the oldest past capacity.
func (s *Service) threadFor(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if threadID, ok := s.threads[sessionID]; ok {
		return threadID
	}
	if len(s.order) >= maxThreads {
		s.dropThread(s.order[0])
	}
	threadID := uuid.New().String()
	s.threads[sessionID] = threadID
	s.order = append(s.order, sessionID)
	return threadID
}

// dropThread removes a session's continuation entry. Caller holds s.mu.
func (s *Service) dropThread(sessionID string) {
	if _, ok := s.threads[sessionID]; !ok {
		return
	}
	delete(s.threads, sessionID)
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// toWorkflowHistory maps persisted records onto the run's message shape.
func toWorkflowHistory(msgs []session.ChatMessage) []workflow.Message {
	out := make([]workflow.Message, 0, len(msgs))
	for _, m := range msgs {
		role := schema.ChatMessageTypeHuman
		switch m.Role {
		case "assistant":
			role = schema.ChatMessageTypeAI
		case "system":
			role = schema.ChatMessageTypeSystem
		}
		out = append(out, workflow.Message{Role: role, Content: m.Content})
	}
	return out
}
