package artifact

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"synthmigrate/internal/generate"
	"synthmigrate/internal/util/jsonutil"
)

// RenderLightweight renders doc as an Elastic Synthetics project monitor
// file.
func RenderLightweight(doc *generate.LightweightDoc) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("render lightweight: nil document")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	wrapped := map[string][]*generate.LightweightDoc{"heartbeat.monitors": {doc}}
	if err := enc.Encode(wrapped); err != nil {
		return nil, fmt.Errorf("render lightweight %s: %w", doc.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderJourney renders doc as an @elastic/synthetics TypeScript journey.
func RenderJourney(doc *generate.JourneyDoc) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("render journey: nil document")
	}
	var b strings.Builder
	b.WriteString("import { journey, step, expect, monitor } from '@elastic/synthetics';\n\n")
	fmt.Fprintf(&b, "journey(%s, ({ page, params, request }) => {\n", jsString(doc.Name))
	b.WriteString("  monitor.use({\n")
	fmt.Fprintf(&b, "    id: %s,\n", jsString(doc.ID))
	fmt.Fprintf(&b, "    schedule: %d,\n", scheduleMinutes(doc.Schedule))
	fmt.Fprintf(&b, "    enabled: %t,\n", doc.Enabled)
	fmt.Fprintf(&b, "    locations: %s,\n", jsList(doc.Locations))
	fmt.Fprintf(&b, "    tags: %s,\n", jsList(doc.Tags))
	if len(doc.Params) > 0 {
		fmt.Fprintf(&b, "    params: %s,\n", jsValue(doc.Params))
	}
	b.WriteString("  });\n")
	fmt.Fprintf(&b, "  // original_uptrends_id: %s\n", doc.OriginalSourceID)
	b.WriteString("  let lastResponse = null;\n")

	for i, s := range doc.Steps {
		body, err := stepBody(s)
		if err != nil {
			return nil, fmt.Errorf("render journey %s: step %d: %w", doc.ID, i, err)
		}
		fmt.Fprintf(&b, "\n  step(%s, async () => {\n", jsString(s.Name))
		for _, line := range body {
			b.WriteString("    " + line + "\n")
		}
		b.WriteString("  });\n")
	}
	b.WriteString("});\n")
	return []byte(b.String()), nil
}

func stepBody(s generate.JourneyStep) ([]string, error) {
	p := s.Params
	switch s.Action {
	case generate.ActionNavigate:
		return []string{fmt.Sprintf("lastResponse = await page.goto(%s);", jsString(p["url"]))}, nil
	case generate.ActionClick:
		return []string{fmt.Sprintf("await page.click(%s);", jsString(p["selector"]))}, nil
	case generate.ActionFill:
		return []string{fmt.Sprintf("await page.fill(%s, %s);", jsString(p["selector"]), jsString(p["value"]))}, nil
	case generate.ActionWait:
		d, err := time.ParseDuration(p["duration"])
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("await page.waitForTimeout(%d);", d.Milliseconds())}, nil
	case generate.ActionAssertText:
		sel, text := p["selector"], p["text"]
		switch {
		case sel != "" && text != "":
			return []string{fmt.Sprintf("await expect(page.locator(%s)).toContainText(%s);", jsString(sel), jsString(text))}, nil
		case sel != "":
			return []string{fmt.Sprintf("await expect(page.locator(%s)).toBeVisible();", jsString(sel))}, nil
		default:
			return []string{fmt.Sprintf("await expect(page.getByText(%s).first()).toBeVisible();", jsString(text))}, nil
		}
	case generate.ActionAssertStatus:
		status, err := strconv.Atoi(p["status"])
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("expect(lastResponse?.status()).toBe(%d);", status)}, nil
	case generate.ActionRequest:
		method := p["method"]
		if method == "" {
			method = "GET"
		}
		lines := []string{
			fmt.Sprintf("const res = await request.fetch(%s, { method: %s });", jsString(p["url"]), jsString(method)),
		}
		if st := p["status"]; st != "" {
			status, err := strconv.Atoi(st)
			if err != nil {
				return nil, err
			}
			lines = append(lines, fmt.Sprintf("expect(res.status()).toBe(%d);", status))
		} else {
			lines = append(lines, "expect(res.ok()).toBeTruthy();")
		}
		return lines, nil
	}
	return nil, fmt.Errorf("unsupported action %q", s.Action)
}

// JSON string literals are valid JavaScript string literals.
func jsString(s string) string { return jsValue(s) }

func jsList(items []string) string {
	if items == nil {
		items = []string{}
	}
	return jsValue(items)
}

func jsValue(v any) string {
	b, err := jsonutil.MarshalNoEscape(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// scheduleMinutes converts "@every <n>[smh]" to the whole minutes
// monitor.use expects, rounding up and never below one.
func scheduleMinutes(schedule string) int {
	spec := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(schedule), "@every"))
	d, err := time.ParseDuration(spec)
	if err != nil || d <= 0 {
		return 5
	}
	mins := int((d + time.Minute - 1) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return mins
}
