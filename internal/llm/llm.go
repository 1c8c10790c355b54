package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrInvalidJSON is returned when a backend answers with something that is
// not a JSON object. Backends wrap it with retry.Permanent.
var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// LLMClient is a model backend that answers a prompt with a JSON document.
type LLMClient interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Close() error
}
