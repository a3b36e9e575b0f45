package models

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged unit of the history sent upstream.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is an entry in the client's display log. Only user and assistant
// roles appear there.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TutorVerdict is the structured answer the model is instructed to return.
type TutorVerdict struct {
	IsCorrect    bool   `json:"is_correct"`
	NextQuestion string `json:"next_question"`
	Message      string `json:"message"`
}

// TutorResponse is the body of a successful POST /chat.
type TutorResponse struct {
	IsCorrect    bool   `json:"is_correct"`
	NextQuestion string `json:"next_question"`
	Message      string `json:"message"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

// ReadyResponse is the body of GET /chat.
type ReadyResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error,omitempty"`
	// Message is read by the client when a server answers with {message}.
	Message string `json:"message,omitempty"`
}
