package uptrends

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"synthmigrate/internal/monitor"
)

// ErrMalformedMonitor is returned when a payload has no usable MonitorGuid.
var ErrMalformedMonitor = errors.New("uptrends: malformed monitor payload")

// wireMonitor is the subset of the v4 Monitor object the migration models.
// Everything else ends up in Record.Raw.
type wireMonitor struct {
	MonitorGuid                     string           `json:"MonitorGuid"`
	Name                            string           `json:"Name"`
	MonitorType                     string           `json:"MonitorType"`
	URL                             string           `json:"Url"`
	NetworkAddress                  string           `json:"NetworkAddress"`
	Port                            int              `json:"Port"`
	CheckInterval                   int              `json:"CheckInterval"` // minutes
	IsActive                        *bool            `json:"IsActive"`
	HTTPMethod                      string           `json:"HttpMethod"`
	RequestHeaders                  []wireHeader     `json:"RequestHeaders"`
	RequestBody                     string           `json:"RequestBody"`
	ExpectedHTTPStatusCode          int              `json:"ExpectedHttpStatusCode"`
	ExpectedHTTPStatusCodeSpecified bool             `json:"ExpectedHttpStatusCodeSpecified"`
	MatchPattern                    string           `json:"MatchPattern"`
	LoadTimeLimit2                  int              `json:"LoadTimeLimit2"` // milliseconds
	SelfServiceTransactionScript    string           `json:"SelfServiceTransactionScript"`
	MultiStepAPITransactionScript   string           `json:"MultiStepApiTransactionScript"`
	MsaSteps                        []wireMsaStep    `json:"MsaSteps"`
	TransactionStepDefinition       *wireTransaction `json:"TransactionStepDefinition"`
	BrowserType                     string           `json:"BrowserType"`
	Notes                           string           `json:"Notes"`
}

type wireHeader struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

type wireMsaStep struct {
	StepType   string          `json:"StepType"`
	Name       string          `json:"Name"`
	URL        string          `json:"Url"`
	Method     string          `json:"Method"`
	Delay      int             `json:"Delay"` // seconds
	Assertions []wireAssertion `json:"Assertions"`
}

type wireAssertion struct {
	Source      string `json:"Source"`
	Comparison  string `json:"Comparison"`
	TargetValue string `json:"TargetValue"`
}

type wireTransaction struct {
	Steps []struct {
		Name     string          `json:"Name"`
		SubSteps []wireTxSubStep `json:"SubSteps"`
	} `json:"Steps"`
}

type wireTxSubStep struct {
	Name     string       `json:"Name"`
	Type     string       `json:"Type"`
	URL      string       `json:"Url"`
	Value    string       `json:"Value"`
	Element  *wireElement `json:"Element"`
	WaitTime int          `json:"WaitTime"` // milliseconds
}

type wireElement struct {
	Primary struct {
		Value string `json:"Value"`
	} `json:"Primary"`
}

// modeledKeys are the payload keys mapped onto Record fields.
var modeledKeys = map[string]bool{
	"MonitorGuid": true, "Name": true, "MonitorType": true, "Url": true, "NetworkAddress": true,
	"Port": true, "CheckInterval": true, "IsActive": true, "HttpMethod": true, "RequestHeaders": true,
	"RequestBody": true, "ExpectedHttpStatusCode": true, "ExpectedHttpStatusCodeSpecified": true,
	"MatchPattern": true, "LoadTimeLimit2": true, "SelfServiceTransactionScript": true,
	"MultiStepApiTransactionScript": true, "MsaSteps": true, "TransactionStepDefinition": true,
	"BrowserType": true, "Notes": true,
}

// ParseMonitor decodes one Uptrends Monitor object.
func ParseMonitor(data []byte) (monitor.Record, error) {
	var w wireMonitor
	if err := json.Unmarshal(data, &w); err != nil {
		return monitor.Record{}, fmt.Errorf("%w: %v", ErrMalformedMonitor, err)
	}
	if strings.TrimSpace(w.MonitorGuid) == "" {
		return monitor.Record{}, fmt.Errorf("%w: MonitorGuid is empty", ErrMalformedMonitor)
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return monitor.Record{}, fmt.Errorf("%w: %v", ErrMalformedMonitor, err)
	}

	rec := monitor.Record{
		ID:            strings.TrimSpace(w.MonitorGuid),
		Name:          strings.TrimSpace(w.Name),
		Kind:          monitor.ParseSourceKind(w.MonitorType),
		URL:           strings.TrimSpace(w.URL),
		Host:          strings.TrimSpace(w.NetworkAddress),
		Port:          w.Port,
		Method:        strings.TrimSpace(w.HTTPMethod),
		Body:          w.RequestBody,
		MatchPattern:  w.MatchPattern,
		CheckInterval: w.CheckInterval * 60,
		Active:        w.IsActive == nil || *w.IsActive,
		BrowserType:   w.BrowserType,
		Notes:         w.Notes,
	}
	if w.LoadTimeLimit2 > 0 {
		rec.TimeoutSeconds = (w.LoadTimeLimit2 + 999) / 1000
	}
	for _, h := range w.RequestHeaders {
		rec.Headers = append(rec.Headers, monitor.Header{Key: h.Key, Value: h.Value})
	}
	if w.ExpectedHTTPStatusCodeSpecified {
		code := w.ExpectedHTTPStatusCode
		rec.ExpectedStatus = &code
	}
	rec.Script = firstNonEmpty(w.SelfServiceTransactionScript, w.MultiStepAPITransactionScript)

	for _, s := range w.MsaSteps {
		rec.Steps = append(rec.Steps, msaStep(s))
	}
	if w.TransactionStepDefinition != nil {
		for _, parent := range w.TransactionStepDefinition.Steps {
			for i, sub := range parent.SubSteps {
				rec.Steps = append(rec.Steps, txStep(parent.Name, i, len(parent.SubSteps), sub))
			}
		}
	}

	for k, v := range all {
		if modeledKeys[k] || v == nil {
			continue
		}
		if rec.Raw == nil {
			rec.Raw = map[string]any{}
		}
		rec.Raw[k] = v
	}
	return rec, nil
}

func msaStep(s wireMsaStep) monitor.Step {
	step := monitor.Step{
		Name:   strings.TrimSpace(s.Name),
		Type:   s.StepType,
		URL:    strings.TrimSpace(s.URL),
		Method: strings.TrimSpace(s.Method),
	}
	if strings.EqualFold(s.StepType, "Delay") {
		step.Type = "Wait"
		step.WaitMillis = s.Delay * 1000
	}
	for _, a := range s.Assertions {
		if !strings.EqualFold(a.Source, "ResponseStatusCode") {
			continue
		}
		if code, err := strconv.Atoi(strings.TrimSpace(a.TargetValue)); err == nil {
			step.ExpectedStatus = &code
			break
		}
	}
	return step
}

func txStep(parent string, i, n int, sub wireTxSubStep) monitor.Step {
	name := strings.TrimSpace(sub.Name)
	if name == "" && strings.TrimSpace(parent) != "" {
		name = strings.TrimSpace(parent)
		if n > 1 {
			name = fmt.Sprintf("%s #%d", name, i+1)
		}
	}
	step := monitor.Step{
		Name:       name,
		Type:       sub.Type,
		URL:        strings.TrimSpace(sub.URL),
		Value:      sub.Value,
		WaitMillis: sub.WaitTime,
	}
	if sub.Element != nil {
		step.Selector = strings.TrimSpace(sub.Element.Primary.Value)
	}
	return step
}

// Decoded is one entry of a monitor file. When Err is set the entry could
// not be parsed and Record carries only the id and name that were readable.
type Decoded struct {
	Record monitor.Record
	Err    error
}

// DecodeMonitors accepts either a JSON array of Monitor objects or a single
// object, as produced by GET /Monitor and GET /Monitor/{guid}. Array items
// are parsed one by one; a bad item yields an entry with Err set and the
// rest still decode. The error return is for data that is not JSON at all.
func DecodeMonitors(data []byte) ([]Decoded, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		return []Decoded{decodeItem(0, trimmed)}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMonitor, err)
	}
	out := make([]Decoded, len(items))
	for i, item := range items {
		out[i] = decodeItem(i, item)
	}
	return out, nil
}

func decodeItem(i int, item []byte) Decoded {
	rec, err := ParseMonitor(item)
	if err == nil {
		return Decoded{Record: rec}
	}
	// Unmarshal keeps filling fields past a type mismatch, so the id and
	// name usually survive.
	var head struct {
		MonitorGuid string `json:"MonitorGuid"`
		Name        string `json:"Name"`
	}
	_ = json.Unmarshal(item, &head)
	id := strings.TrimSpace(head.MonitorGuid)
	if id == "" {
		id = fmt.Sprintf("item-%d", i)
	}
	return Decoded{
		Record: monitor.Record{ID: id, Name: strings.TrimSpace(head.Name)},
		Err:    fmt.Errorf("monitor %d: %w", i, err),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
