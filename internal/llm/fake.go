package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FakeClient answers classification prompts deterministically for offline
// and dry runs. It inspects the descriptive text under the "monitor" input
// key and picks a label the way a cautious reviewer would.
type FakeClient struct{}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	desc := ""
	if m, ok := input.(map[string]any); ok {
		desc, _ = m["monitor"].(string)
	}
	label, reason := fakeLabel(desc)
	b, _ := json.Marshal(map[string]any{
		"elastic_type": label,
		"confidence":   0.75,
		"reasoning":    fmt.Sprintf("fake: %s", reason),
	})
	return json.RawMessage(b), nil
}

func fakeLabel(desc string) (string, string) {
	field := func(label string) string {
		prefix := "- " + label + ": "
		for _, line := range strings.Split(desc, "\n") {
			if strings.HasPrefix(line, prefix) {
				v := strings.TrimSpace(strings.TrimPrefix(line, prefix))
				if v == "N/A" {
					return ""
				}
				return v
			}
		}
		return ""
	}
	switch {
	case field("Steps") != "" || field("Transaction Script") != "":
		return "browser", "monitor carries scripted steps"
	case field("Port") != "":
		return "tcp", "monitor targets an explicit port"
	case strings.HasPrefix(field("URL"), "http://") || strings.HasPrefix(field("URL"), "https://"):
		return "http", "monitor targets an http(s) URL"
	default:
		return "icmp", "plain host reachability"
	}
}
