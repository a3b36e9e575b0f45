package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keeeei13c/speedy-english-training/internal/llm"
	"github.com/keeeei13c/speedy-english-training/internal/models"
	"go.uber.org/zap"
)

// SessionHeader carries the conversation key on requests and responses.
const SessionHeader = "X-Session-ID"

const ReadyMessage = "English learning API is ready. Send a POST request to start learning."

// Tutor runs one tutoring exchange.
type Tutor interface {
	SubmitTurn(ctx context.Context, sessionID, userMessage string) (*models.TutorResponse, error)
}

type Handler struct {
	tutor  Tutor
	logger *zap.Logger
}

func NewHandler(tutor Tutor, logger *zap.Logger) *Handler {
	return &Handler{
		tutor:  tutor,
		logger: logger,
	}
}

// Routes returns the /chat endpoint wrapped in logging, CORS and panic
// recovery.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", h.HandleChat)

	return chainMiddlewares(mux, h.withRecovery, withCORS, h.withLogging)
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.logger.Debug("Readiness probe", zap.String("path", r.URL.Path))
		writeJSON(w, http.StatusOK, models.ReadyResponse{Message: ReadyMessage})
	case http.MethodPost:
		h.handleSubmit(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method not allowed"})
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		h.logger.Info("Rejected request without message", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Message is required"})
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sessionID = llm.DefaultSessionID
	}
	if err := llm.ValidateSessionID(sessionID); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session id"})
		return
	}
	w.Header().Set(SessionHeader, sessionID)

	resp, err := h.tutor.SubmitTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var upErr *llm.UpstreamError
	switch {
	case errors.Is(err, llm.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, llm.ErrSessionBusy):
		h.logger.Warn("Session busy", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "Session is busy, please try again"})
	case errors.As(err, &upErr):
		writeJSON(w, upErr.HTTPStatus(), models.ErrorResponse{Error: "Failed to get response from upstream API"})
	default:
		h.logger.Error("Failed to process message", zap.Error(err))
		writeServerError(w)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServerError answers with a well-formed tutoring body so the client
// can show the text like any other reply.
func writeServerError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, models.TutorResponse{Message: llm.ServerErrorMessage})
}
