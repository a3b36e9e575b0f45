package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keeeei13c/speedy-english-training/internal/config"
	"github.com/keeeei13c/speedy-english-training/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.APIKeyEnv, "")
	t.Setenv("TUTOR_UPSTREAM_API_KEY", "")
	t.Setenv("TUTOR_UPSTREAM_BASE_URL", "")
	t.Setenv("TUTOR_CLIENT_SERVER_URL", "")
}

func TestChatCommand(t *testing.T) {
	clearEnv(t)

	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		received = append(received, req.Message)

		resp := models.TutorResponse{Message: "Q. 「丁寧なご対応ありがとう」"}
		if req.Message != "Start" {
			resp = models.TutorResponse{IsCorrect: true, NextQuestion: "Q. 「また明日」", Message: "Perfect!"}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	out, err := execute(t, "/start\nThank you for your kind support\n\n/clear\n/quit\n", "chat", "--server", srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []string{"Start", "Thank you for your kind support"}, received)
	assert.Contains(t, out, "tutor: Q. 「丁寧なご対応ありがとう」")
	assert.Contains(t, out, "tutor: Perfect!\n\nNext question: Q. 「また明日」")
	assert.Contains(t, out, "(cleared)")
	assert.NotContains(t, out, "error:")
}

func TestProbeCommand(t *testing.T) {
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-probe", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-probe",
			"model": "deepseek-chat",
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"status": "ok"}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	defer srv.Close()

	t.Setenv(config.APIKeyEnv, "sk-probe")
	t.Setenv("TUTOR_UPSTREAM_BASE_URL", srv.URL)

	out, err := execute(t, "", "probe")
	require.NoError(t, err)
	assert.Contains(t, out, `{"status": "ok"}`)
}

func TestCommandsRequireAPIKey(t *testing.T) {
	clearEnv(t)

	for _, name := range []string{"serve", "probe"} {
		_, err := execute(t, "", name)
		assert.ErrorIs(t, err, config.ErrMissingAPIKey, name)
	}
}
