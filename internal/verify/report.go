package verify

import (
	"fmt"
	"strings"
)

// FormatCoVeReport renders a human-readable Chain of Verification report
// from a result payload. It is total over its input: missing keys, nil
// values and an absent "cove" section all produce a sensible string rather
// than an error.
func FormatCoVeReport(results map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("CHAIN OF VERIFICATION REPORT\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	cove, ok := results["cove"].(map[string]interface{})
	if !ok {
		b.WriteString("No Chain of Verification data recorded.\n")
		return b.String()
	}

	writeReportSection(&b, "Verification Questions", cove["questions"])
	writeReportSection(&b, "Independent Answers", cove["answers"])
	writeReportSection(&b, "Issues", cove["issues"])

	passed, _ := cove["passed"].(bool)
	regenerated, _ := cove["regenerated"].(bool)
	fmt.Fprintf(&b, "Passed: %v\n", passed)
	fmt.Fprintf(&b, "Regenerated: %v\n", regenerated)

	if orig := intValue(cove["original_content_length"]); orig > 0 {
		fmt.Fprintf(&b, "Original length: %d chars\n", orig)
	}
	if final := intValue(cove["final_content_length"]); final > 0 {
		fmt.Fprintf(&b, "Final length: %d chars\n", final)
	}
	return b.String()
}

// ReportPayload converts a CoVeResult into the map shape FormatCoVeReport
// and the audit log consume.
func (res *CoVeResult) ReportPayload() map[string]interface{} {
	return map[string]interface{}{
		"cove": map[string]interface{}{
			"questions":               res.Questions,
			"answers":                 res.Answers,
			"issues":                  res.Issues,
			"passed":                  res.Passed,
			"regenerated":             res.Regenerated,
			"original_content_length": res.OriginalContentLength,
			"final_content_length":    res.FinalContentLength,
		},
	}
}

func writeReportSection(b *strings.Builder, title string, value interface{}) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("-", len(title)) + "\n")
	text := stringValue(value)
	if text == "" {
		b.WriteString("(none)\n\n")
		return
	}
	b.WriteString(strings.TrimSpace(text) + "\n\n")
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, "\n")
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func intValue(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	default:
		return 0
	}
}
