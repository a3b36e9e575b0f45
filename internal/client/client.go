package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keeeei13c/speedy-english-training/internal/models"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	MaxAttempts  = 3
	BaseDelay    = time.Second
	ChatPath     = "/chat"
	StartMessage = "Start"

	SessionHeader = "X-Session-ID"
)

var (
	ErrRetryExhausted  = errors.New("retries exhausted")
	ErrNonJSONResponse = errors.New("the API returned a non-JSON response")
)

// RetryExhaustedError is returned once every attempt has failed. Errs holds
// the failure of each attempt in order.
type RetryExhaustedError struct {
	Attempts int
	Errs     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last())
}

// Last is the failure of the final attempt.
func (e *RetryExhaustedError) Last() error {
	errs := multierr.Errors(e.Errs)
	if len(errs) == 0 {
		return nil
	}
	return errs[len(errs)-1]
}

func (e *RetryExhaustedError) Unwrap() []error {
	return append([]error{ErrRetryExhausted}, multierr.Errors(e.Errs)...)
}

// StatusError is a non-2xx answer from the tutoring API.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// State is a snapshot of what a UI renders.
type State struct {
	Messages  []models.Message
	Error     string
	IsLoading bool
}

// Client holds the display log for one learner and submits their messages to
// the tutoring API with bounded retries.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	sessionID   string
	logger      *zap.Logger
	sleep       SleepFunc
	now         func() time.Time
	maxAttempts int
	baseDelay   time.Duration
	onChange    func(State)

	mu       sync.Mutex
	messages []models.Message
	errMsg   string
	inFlight int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSessionID pins the conversation key instead of generating one.
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) { c.sleep = sleep }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
	}
}

// WithOnChange registers an observer called with a snapshot after every
// state change. It runs on the goroutine that made the change.
func WithOnChange(fn func(State)) Option {
	return func(c *Client) { c.onChange = fn }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		sessionID:   uuid.NewString(),
		logger:      zap.NewNop(),
		sleep:       sleepContext,
		now:         time.Now,
		maxAttempts: MaxAttempts,
		baseDelay:   BaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

func (c *Client) SessionID() string { return c.sessionID }

// SendMessage appends the learner's message, submits it, and appends the
// tutor's reply. Failures end up in the error slot, never in a return value.
func (c *Client) SendMessage(ctx context.Context, content string) {
	c.mu.Lock()
	c.inFlight++
	c.errMsg = ""
	c.messages = append(c.messages, c.newMessage(models.RoleUser, content))
	c.mu.Unlock()
	c.notify()

	resp, err := c.Submit(ctx, content)

	c.mu.Lock()
	c.inFlight--
	if err != nil {
		c.errMsg = err.Error()
	} else {
		c.messages = append(c.messages, c.newMessage(models.RoleAssistant, formatReply(resp)))
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("Failed to send message", zap.Error(err))
	}
	c.notify()
}

// StartLearning asks the tutor for the first exercise.
func (c *Client) StartLearning(ctx context.Context) {
	c.SendMessage(ctx, StartMessage)
}

// ClearMessages empties the display log and the error slot. The server keeps
// its history until the next "Start".
func (c *Client) ClearMessages() {
	c.mu.Lock()
	c.messages = nil
	c.errMsg = ""
	c.mu.Unlock()
	c.notify()
}

func (c *Client) Messages() []models.Message {
	return c.State().Messages
}

// Err is the current error text, empty when there is none.
func (c *Client) Err() string {
	return c.State().Error
}

func (c *Client) IsLoading() bool {
	return c.State().IsLoading
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]models.Message, len(c.messages))
	copy(msgs, c.messages)
	return State{
		Messages:  msgs,
		Error:     c.errMsg,
		IsLoading: c.inFlight > 0,
	}
}

// Submit posts content to the tutoring API, retrying failed attempts with a
// linearly growing delay.
func (c *Client) Submit(ctx context.Context, content string) (*models.TutorResponse, error) {
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), linearBackoff(c.baseDelay))

	var errs error
	for attempt := 1; ; attempt++ {
		c.logger.Debug("Sending chat request",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts))

		resp, err := c.post(ctx, content)
		if err == nil {
			return resp, nil
		}
		errs = multierr.Append(errs, err)
		c.logger.Warn("Chat request failed", zap.Int("attempt", attempt), zap.Error(err))

		delay, stop := backoff.Next()
		if stop {
			return nil, &RetryExhaustedError{Attempts: attempt, Errs: errs}
		}

		c.logger.Info("Retrying chat request", zap.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &RetryExhaustedError{Attempts: attempt, Errs: multierr.Append(errs, err)}
		}
	}
}

func (c *Client) post(ctx context.Context, content string) (*models.TutorResponse, error) {
	body, err := json.Marshal(models.ChatRequest{Message: content})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set(SessionHeader, c.sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Received chat response",
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")))

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("Non-JSON response", zap.ByteString("body", text))
		return nil, ErrNonJSONResponse
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("API error (status %d)", resp.StatusCode)
		}
		return nil, &StatusError{Status: resp.StatusCode, Message: msg}
	}

	var out models.TutorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) newMessage(role models.Role, content string) models.Message {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return models.Message{
		ID:        id.String(),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	}
}

func (c *Client) notify() {
	if c.onChange != nil {
		c.onChange(c.State())
	}
}

func formatReply(resp *models.TutorResponse) string {
	if resp.IsCorrect {
		return resp.Message + "\n\nNext question: " + resp.NextQuestion
	}
	return resp.Message
}

// linearBackoff waits base, 2*base, 3*base, ...
func linearBackoff(base time.Duration) retry.Backoff {
	var mu sync.Mutex
	var attempt int64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		mu.Lock()
		defer mu.Unlock()
		attempt++
		return time.Duration(attempt) * base, false
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
