package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keeeei13c/speedy-english-training/internal/db"
	"github.com/keeeei13c/speedy-english-training/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	Model       = "deepseek-chat"
	Temperature = 1.3

	// DefaultSessionID is used by requests that carry no session id. All such
	// requests share one history.
	DefaultSessionID = "default"

	StartCommand = "start"
)

// Fixed texts returned to the learner when the upstream answer is unusable.
const (
	ParseErrorMessage  = "Error: could not parse the AI response. Please try again."
	NoResponseMessage  = "Error: the AI did not respond. Please try again."
	ServerErrorMessage = "A server error occurred. Please wait a moment and try again."
)

// Service forwards learner messages to the model and keeps each session's
// conversation history.
type Service struct {
	llm     llms.Model
	store   db.HistoryStore
	system  models.Turn
	timeout time.Duration
	logger  *zap.Logger
	locks   sessionLocks
}

type Option func(*Service)

// WithTimeout bounds each upstream call. Zero leaves the call without a
// deadline beyond the request context.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func New(model llms.Model, store db.HistoryStore, systemPrompt string, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		llm:    model,
		store:  store,
		system: models.Turn{Role: models.RoleSystem, Content: systemPrompt},
		logger: logger,
		locks:  sessionLocks{locks: make(map[string]*sessionLock)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSessionID accepts the shared default session or a UUID.
func ValidateSessionID(id string) error {
	if id == DefaultSessionID {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid session id", ErrInvalidRequest)
	}
	return nil
}

// SubmitTurn runs one tutoring exchange for the session. Turns on the same
// session are serialized; different sessions proceed independently.
func (s *Service) SubmitTurn(ctx context.Context, sessionID, userMessage string) (*models.TutorResponse, error) {
	if userMessage == "" {
		return nil, fmt.Errorf("%w: Message is required", ErrInvalidRequest)
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("session_id", sessionID))

	unlock, err := s.locks.lock(ctx, sessionID)
	if err != nil {
		log.Warn("Gave up waiting for session", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSessionBusy, err)
	}
	defer unlock()

	// A started turn runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	log.Info("Received message",
		zap.String("user_message", userMessage),
		zap.Int("history_length", len(history)))

	if strings.ToLower(userMessage) == StartCommand || len(history) == 0 {
		if err := s.store.Reset(ctx, sessionID, s.system); err != nil {
			return nil, fmt.Errorf("failed to reset history: %w", err)
		}
		log.Info("Conversation history initialized with system prompt")
	}

	if err := s.store.Append(ctx, sessionID, models.Turn{Role: models.RoleUser, Content: userMessage}); err != nil {
		return nil, fmt.Errorf("failed to append user turn: %w", err)
	}

	history, err = s.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	content, err := s.complete(ctx, log, history)
	if errors.Is(err, ErrNoChoicesReturned) {
		log.Warn("No valid response from upstream", zap.Error(err))
		return &models.TutorResponse{Message: NoResponseMessage}, nil
	}
	if err != nil {
		log.Error("Upstream request failed", zap.Error(err))
		return nil, err
	}

	// Stored before parsing so the model sees its own answer next turn even
	// when it was not valid JSON.
	if err := s.store.Append(ctx, sessionID, models.Turn{Role: models.RoleAssistant, Content: content}); err != nil {
		return nil, fmt.Errorf("failed to append assistant turn: %w", err)
	}

	verdict, err := parseVerdict(content)
	if err != nil {
		log.Warn("Failed to parse upstream response content",
			zap.Error(err),
			zap.String("content", truncate(content, 200)))
		return &models.TutorResponse{Message: ParseErrorMessage}, nil
	}

	log.Info("Parsed response",
		zap.Bool("is_correct", verdict.IsCorrect),
		zap.String("next_question", truncate(verdict.NextQuestion, 100)),
		zap.Int("message_length", len(verdict.Message)))

	if verdict.IsCorrect {
		log.Info("Resetting conversation history after correct answer")
		if err := s.store.Reset(ctx, sessionID, s.system); err != nil {
			return nil, fmt.Errorf("failed to reset history: %w", err)
		}
	}

	return &models.TutorResponse{
		IsCorrect:    verdict.IsCorrect,
		NextQuestion: verdict.NextQuestion,
		Message:      verdict.Message,
	}, nil
}

// History returns a copy of the session's conversation history.
func (s *Service) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return s.store.History(ctx, sessionID)
}

func (s *Service) complete(ctx context.Context, log *zap.Logger, history []models.Turn) (string, error) {
	ctx, status := withStatusRecorder(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log.Info("Sending upstream request",
		zap.String("model", Model),
		zap.Float64("temperature", Temperature),
		zap.Int("message_count", len(history)))

	start := time.Now()
	resp, err := s.llm.GenerateContent(ctx, toMessageContents(history),
		llms.WithModel(Model),
		llms.WithTemperature(Temperature),
		llms.WithJSONMode(),
	)
	if errors.Is(err, openai.ErrEmptyResponse) || (err != nil && status.noChoices()) {
		return "", ErrNoChoicesReturned
	}
	if err != nil {
		return "", &UpstreamError{Status: status.get(), Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}

	choice := resp.Choices[0]
	log.Info("Received upstream response",
		zap.Duration("elapsed", time.Since(start)),
		zap.Any("prompt_tokens", choice.GenerationInfo["PromptTokens"]),
		zap.Any("completion_tokens", choice.GenerationInfo["CompletionTokens"]),
		zap.Any("total_tokens", choice.GenerationInfo["TotalTokens"]),
		zap.String("content_preview", truncate(choice.Content, 100)))

	return choice.Content, nil
}

func toMessageContents(history []models.Turn) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history))
	for _, t := range history {
		var role llms.ChatMessageType
		switch t.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, t.Content))
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// sessionLocks hands out one lock per session id. An entry lives only while
// some caller holds or waits on it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

// lock waits for the session or until ctx is done.
func (l *sessionLocks) lock(ctx context.Context, id string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.sem <- struct{}{}:
		return func() {
			<-sl.sem
			l.release(id, sl)
		}, nil
	case <-ctx.Done():
		l.release(id, sl)
		return nil, ctx.Err()
	}
}

func (l *sessionLocks) release(id string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
