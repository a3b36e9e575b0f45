package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/keeeei13c/speedy-english-training/internal/models"
)

var jsonNull = []byte("null")

// parseVerdict decodes the model's answer. is_correct must be a boolean and
// message a string; next_question may be missing or null.
func parseVerdict(content string) (*models.TutorVerdict, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpstreamPayload, err)
	}

	var v models.TutorVerdict

	raw, ok := fields["is_correct"]
	if !ok || bytes.Equal(raw, jsonNull) {
		return nil, fmt.Errorf("%w: is_correct is missing", ErrMalformedUpstreamPayload)
	}
	if err := json.Unmarshal(raw, &v.IsCorrect); err != nil {
		return nil, fmt.Errorf("%w: is_correct: %v", ErrMalformedUpstreamPayload, err)
	}

	raw, ok = fields["message"]
	if !ok || bytes.Equal(raw, jsonNull) {
		return nil, fmt.Errorf("%w: message is missing", ErrMalformedUpstreamPayload)
	}
	if err := json.Unmarshal(raw, &v.Message); err != nil {
		return nil, fmt.Errorf("%w: message: %v", ErrMalformedUpstreamPayload, err)
	}

	if raw, ok = fields["next_question"]; ok && !bytes.Equal(raw, jsonNull) {
		if err := json.Unmarshal(raw, &v.NextQuestion); err != nil {
			return nil, fmt.Errorf("%w: next_question: %v", ErrMalformedUpstreamPayload, err)
		}
	}

	return &v, nil
}
