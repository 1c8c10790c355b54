package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"synthmigrate/internal/monitor"
	"synthmigrate/internal/retry"
	"synthmigrate/internal/tester"
)

func TestOllama_ExtractsJSONFromResponse(t *testing.T) {
	var got ollamaGenerateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tester.Eq(t, r.URL.Path, "/api/generate")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": "Answer:\n{\"elastic_type\":\"browser\",\"confidence\":0.8,\"reasoning\":\"steps\"}",
			"done":     true,
		})
	}))
	defer srv.Close()

	cli := NewOllamaClient(srv.URL+"/", "qwen2.5-coder:7b", time.Second)
	raw, err := cli.GenerateJSON(context.Background(), "classify", map[string]any{"monitor": "m"})
	tester.NoErr(t, err)
	tester.True(t, strings.Contains(string(raw), `"browser"`), string(raw))
	tester.Eq(t, got.Model, "qwen2.5-coder:7b")
	tester.False(t, got.Stream)
	tester.Eq(t, got.Format, "json")
	tester.True(t, strings.Contains(got.Prompt, "[INPUT JSON]"), got.Prompt)
}

func TestOllama_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading model", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL, "m", time.Second).GenerateJSON(context.Background(), "p", nil)
	tester.True(t, err != nil, "expected error")
	tester.False(t, retry.IsPermanent(err), "5xx must stay retryable")
}

func TestOllama_ClientErrorAndGarbageArePermanent(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "m" not found`, http.StatusNotFound)
	}))
	defer notFound.Close()
	_, err := NewOllamaClient(notFound.URL, "m", time.Second).GenerateJSON(context.Background(), "p", nil)
	tester.True(t, retry.IsPermanent(err), "4xx is permanent: %v", err)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "no idea", "done": true})
	}))
	defer garbage.Close()
	_, err = NewOllamaClient(garbage.URL, "m", time.Second).GenerateJSON(context.Background(), "p", nil)
	tester.True(t, retry.IsPermanent(err), "unparseable answer is permanent: %v", err)
	tester.ErrIs(t, err, ErrInvalidJSON)
}

func TestFakeClient_LabelsFromDescription(t *testing.T) {
	cases := []struct {
		rec  monitor.Record
		want string
	}{
		{monitor.Record{Name: "dns", Kind: "Dns", Host: "ns1.example.com"}, "icmp"},
		{monitor.Record{Name: "ftp", Kind: "Ftp", Host: "ftp.example.com", Port: 21}, "tcp"},
		{monitor.Record{Name: "odd", Kind: "Unknown", URL: "https://example.com"}, "http"},
		{monitor.Record{Name: "flow", Kind: "Unknown", Steps: []monitor.Step{{Type: "Navigate"}}}, "browser"},
	}
	f := NewFakeClient()
	for _, tc := range cases {
		raw, err := f.GenerateJSON(context.Background(), "p", map[string]any{"monitor": tc.rec.Describe()})
		tester.NoErr(t, err)
		var out struct {
			ElasticType string `json:"elastic_type"`
		}
		tester.NoErr(t, json.Unmarshal(raw, &out))
		tester.Eq(t, out.ElasticType, tc.want, tc.rec.Name)
	}
}
