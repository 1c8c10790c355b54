package monitor

import (
	"strings"
	"testing"

	"synthmigrate/internal/tester"
)

func TestParseSourceKind(t *testing.T) {
	tester.Eq(t, ParseSourceKind("https"), KindHTTPS)
	tester.Eq(t, ParseSourceKind(" MULTISTEPAPI "), KindMultiStepAPI)
	tester.True(t, ParseSourceKind("Ping").Valid())

	odd := ParseSourceKind(" Gopher ")
	tester.Eq(t, odd, SourceKind("Gopher"))
	tester.False(t, odd.Valid())
	tester.False(t, ParseSourceKind("").Valid())
}

func TestSourceKinds_ReturnsCopy(t *testing.T) {
	kinds := SourceKinds()
	tester.Eq(t, len(kinds), 13)
	kinds[0] = "changed"
	tester.Eq(t, SourceKinds()[0], KindHTTP)
}

func TestMultiStep(t *testing.T) {
	tester.True(t, KindTransaction.MultiStep())
	tester.True(t, KindMultiStepAPI.MultiStep())
	tester.False(t, KindHTTPS.MultiStep())
}

func TestHeaderMap(t *testing.T) {
	rec := Record{Headers: []Header{{Key: "Accept", Value: "a"}, {Key: " ", Value: "x"}, {Key: "Accept", Value: "b"}}}
	tester.Eq(t, rec.HeaderMap(), map[string]string{"Accept": "b"})
	tester.True(t, Record{}.HeaderMap() == nil)
	tester.True(t, Record{Headers: []Header{{Key: ""}}}.HeaderMap() == nil)
}

func TestTarget(t *testing.T) {
	tester.Eq(t, Record{URL: " https://x ", Host: "h"}.Target(), "https://x")
	tester.Eq(t, Record{Host: "h"}.Target(), "h")
}

func TestDescribe(t *testing.T) {
	code := 200
	rec := Record{
		Name: "Shop", Kind: KindTransaction, URL: "https://shop.example.com", CheckInterval: 300,
		Headers:        []Header{{Key: "X-B", Value: "2"}, {Key: "X-A", Value: "1"}},
		ExpectedStatus: &code,
		Steps:          []Step{{Type: "Navigate", Name: "Open", URL: "https://shop.example.com"}, {Type: "Click"}},
	}
	desc := rec.Describe()
	for _, want := range []string{
		"- Name: Shop\n",
		"- Type: Transaction\n",
		"- Check Interval: 300 seconds\n",
		"- Request Headers: X-A: 1; X-B: 2\n",
		"- Expected HTTP Status Code: 200\n",
		"- Steps: 1. Navigate Open https://shop.example.com; 2. Click\n",
		"- Port: N/A\n",
		"- Host: N/A\n",
	} {
		tester.True(t, strings.Contains(desc, want), "missing %q in\n%s", want, desc)
	}
}
