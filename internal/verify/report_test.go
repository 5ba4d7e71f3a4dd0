package verify

import (
	"strings"
	"testing"
)

func TestFormatCoVeReportTotality(t *testing.T) {
	// Every shape must render a string, never panic.
	cases := []map[string]interface{}{
		nil,
		{},
		{"cove": nil},
		{"cove": "not a map"},
		{"cove": map[string]interface{}{}},
		{"cove": map[string]interface{}{"questions": nil, "answers": nil, "issues": nil}},
		{"cove": map[string]interface{}{"questions": []interface{}{"Q1", nil, "Q2"}}},
		{"cove": map[string]interface{}{"passed": "yes"}}, // wrong type
	}
	for i, c := range cases {
		out := FormatCoVeReport(c)
		if out == "" {
			t.Errorf("case %d: empty report", i)
		}
		if !strings.Contains(out, "CHAIN OF VERIFICATION REPORT") {
			t.Errorf("case %d: missing title", i)
		}
	}
}

func TestFormatCoVeReportRendersResult(t *testing.T) {
	res := &CoVeResult{
		Questions:             "1. Does the case exist?",
		Answers:               "1. No",
		Issues:                "1. Fabricated citation.",
		Passed:                false,
		Regenerated:           true,
		OriginalContentLength: 80,
		FinalContentLength:    75,
	}
	out := FormatCoVeReport(res.ReportPayload())

	for _, want := range []string{
		"1. Does the case exist?",
		"1. No",
		"1. Fabricated citation.",
		"Passed: false",
		"Regenerated: true",
		"Original length: 80 chars",
		"Final length: 75 chars",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestFormatCoVeReportNoData(t *testing.T) {
	out := FormatCoVeReport(map[string]interface{}{"other": 1})
	if !strings.Contains(out, "No Chain of Verification data") {
		t.Errorf("report = %q", out)
	}
}
