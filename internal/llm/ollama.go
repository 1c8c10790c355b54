package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"synthmigrate/internal/retry"
	"synthmigrate/internal/util/jsonutil"
)

// OllamaClient calls a local Ollama server's generate endpoint and asks for
// a JSON answer. See: https://github.com/ollama/ollama/blob/main/docs/api.md
type OllamaClient struct {
	http    *http.Client
	host    string
	model   string
	options OllamaOptions
}

type OllamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

// NewOllamaClient creates a client for host (e.g. http://localhost:11434).
func NewOllamaClient(host, model string, timeout time.Duration) *OllamaClient {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaClient{
		http:    &http.Client{Timeout: timeout},
		host:    host,
		model:   model,
		options: OllamaOptions{Temperature: 0.1, TopP: 0.9, NumPredict: 1000},
	}
}

func (o *OllamaClient) Name() string { return "Ollama:" + o.model }
func (o *OllamaClient) Close() error { return nil }

type ollamaGenerateReq struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options OllamaOptions `json:"options"`
}

type ollamaGenerateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// GenerateJSON concatenates prompt and input into a single prompt and
// returns the JSON object found in the model's response text.
//
// Transport errors, 429 and 5xx are returned as-is so a Retry middleware can
// try again; 4xx and unparseable answers are permanent.
func (o *OllamaClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	full := prompt
	if input != nil {
		in, _ := json.MarshalIndent(input, "", "  ")
		full = prompt + "\n\n[INPUT JSON]\n" + string(in)
	}
	b, _ := json.Marshal(ollamaGenerateReq{
		Model:   o.model,
		Prompt:  full,
		Stream:  false,
		Format:  "json",
		Options: o.options,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("ollama: unexpected status %s: %s", resp.Status, string(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	var out ollamaGenerateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("ollama: decode response: %w", err))
	}
	raw, err := jsonutil.ExtractObject(out.Response)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}
	return raw, nil
}
