package nodeaction

import (
	"fmt"
	"strconv"
	"strings"
)

// Formatter renders a CheckReport the way one output mode of `node
// check` needs it. Separating measurement (Check) from rendering
// (Formatter) keeps the nagios plugin-format quirks out of the
// sub-checks themselves.
type Formatter interface {
	Format(report *CheckReport) string
}

// FormatterFor resolves the --format flag to a Formatter, defaulting
// to text for an unrecognised value.
func FormatterFor(name string) Formatter {
	switch name {
	case "csv":
		return CSVFormatter{}
	case "nagios":
		return NagiosFormatter{}
	case "optionformat":
		return OptionFormatter{}
	default:
		return TextFormatter{}
	}
}

func (s CheckSeverity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// TextFormatter renders one line per sub-check, for interactive use.
type TextFormatter struct{}

func (TextFormatter) Format(report *CheckReport) string {
	var b strings.Builder
	for _, item := range report.Items {
		fmt.Fprintf(&b, "%-20s %-8s %s\n", item.Name, item.Severity, item.Detail)
	}
	return b.String()
}

// CSVFormatter renders one comma-separated row per sub-check plus a header.
type CSVFormatter struct{}

func (CSVFormatter) Format(report *CheckReport) string {
	var b strings.Builder
	b.WriteString("check,status,detail\n")
	for _, item := range report.Items {
		fmt.Fprintf(&b, "%s,%s,%q\n", item.Name, item.Severity, item.Detail)
	}
	return b.String()
}

// NagiosFormatter renders the classic plugin-output line: an overall
// status word, a pipe-delimited performance-data section, and one
// "label=value;warn;crit" token per sub-check that carries a count — the
// archive-ready check's token looks like "files=60;10;50" at
// count 60, warning 10, critical 50.
type NagiosFormatter struct{}

func (NagiosFormatter) Format(report *CheckReport) string {
	var summary strings.Builder
	var perfData strings.Builder

	for i, item := range report.Items {
		if i > 0 {
			summary.WriteString("; ")
		}
		fmt.Fprintf(&summary, "%s: %s", item.Name, item.Detail)

		if token, ok := perfDataToken(item); ok {
			if perfData.Len() > 0 {
				perfData.WriteByte(' ')
			}
			perfData.WriteString(token)
		}
	}

	line := fmt.Sprintf("%s: %s", report.Worst, summary.String())
	if perfData.Len() > 0 {
		line += " | " + perfData.String()
	}
	return line
}

// perfDataToken renders one performance-data token for item. A check
// with configured thresholds (archive-ready, replication lag) renders
// "label=value;warn;crit", matching the warning/critical pair the
// operator configured; one without falls back to pulling a leading
// count straight out of Detail, as bare "label=value".
func perfDataToken(item CheckItem) (string, bool) {
	label := item.PerfLabel
	if label == "" {
		label = item.Name
	}

	if item.HasThresholds {
		return fmt.Sprintf("%s=%s;%s;%s", label, formatPerfNumber(item.Value), formatPerfNumber(item.Warn), formatPerfNumber(item.Crit)), true
	}

	count, ok := extractLeadingCount(item.Detail)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s=%d", label, count), true
}

// formatPerfNumber renders a performance-data number the way nagios
// plugins do: as a bare integer when it has no fractional part, since
// S4's example has "files=60;10;50" rather than "60.0;10.0;50.0".
func formatPerfNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// extractLeadingCount pulls a leading integer off a detail string like
// "3 files awaiting archival" or "2/4 downstream nodes attached", for
// the nagios formatter's performance-data section.
func extractLeadingCount(detail string) (int, bool) {
	end := 0
	for end < len(detail) && detail[end] >= '0' && detail[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(detail[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// OptionFormatter renders "key=value" pairs, one per line, for
// programmatic consumption by a rejoin driven over SSH.
type OptionFormatter struct{}

func (OptionFormatter) Format(report *CheckReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "overall=%s\n", report.Worst)
	for _, item := range report.Items {
		fmt.Fprintf(&b, "%s.status=%s\n", item.Name, item.Severity)
		fmt.Fprintf(&b, "%s.detail=%s\n", item.Name, item.Detail)
	}
	return b.String()
}
