package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms/openai"
)

type statusKey struct{}

type statusRecorder struct {
	mu           sync.Mutex
	code         int
	emptyChoices bool
}

func (r *statusRecorder) set(code int, emptyChoices bool) {
	r.mu.Lock()
	r.code = code
	r.emptyChoices = emptyChoices
	r.mu.Unlock()
}

func (r *statusRecorder) noChoices() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emptyChoices
}

func (r *statusRecorder) get() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

func withStatusRecorder(ctx context.Context) (context.Context, *statusRecorder) {
	rec := &statusRecorder{}
	return context.WithValue(ctx, statusKey{}, rec), rec
}

// recordingDoer stores the upstream status in the request context so a
// failed completion can be reported with the status the API returned. A
// successful envelope without choices is flagged as well.
type recordingDoer struct {
	client *http.Client
}

func (d recordingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	rec, ok := req.Context().Value(statusKey{}).(*statusRecorder)
	if !ok {
		return resp, nil
	}
	if resp.StatusCode != http.StatusOK {
		rec.set(resp.StatusCode, false)
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var envelope struct {
		Choices []json.RawMessage `json:"choices"`
	}
	empty := json.Unmarshal(body, &envelope) == nil && len(envelope.Choices) == 0
	rec.set(resp.StatusCode, empty)
	return resp, nil
}

// NewUpstream builds a chat-completions client for an OpenAI-compatible API
// such as DeepSeek. The HTTP client has no timeout; deadlines come from the
// caller's context.
func NewUpstream(baseURL, token string) (*openai.LLM, error) {
	return openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(strings.TrimRight(baseURL, "/")),
		openai.WithModel(Model),
		openai.WithResponseFormat(openai.ResponseFormatJSON),
		openai.WithHTTPClient(recordingDoer{client: &http.Client{}}),
	)
}
