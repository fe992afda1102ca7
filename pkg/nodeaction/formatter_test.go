package nodeaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNagiosFormatterRendersPerformanceData(t *testing.T) {
	report := &CheckReport{
		Worst: SeverityCritical,
		Items: []CheckItem{
			{
				Name: "archive_ready", Severity: SeverityCritical, Detail: "60 files awaiting archival",
				PerfLabel: "files", Value: 60, Warn: 10, Crit: 50, HasThresholds: true,
			},
		},
	}
	got := NagiosFormatter{}.Format(report)
	assert.Contains(t, got, "CRITICAL:")
	assert.Contains(t, got, "files=60;10;50")
}

func TestNagiosFormatterFallsBackToLeadingCountWithoutThresholds(t *testing.T) {
	report := &CheckReport{
		Worst: SeverityOK,
		Items: []CheckItem{
			{Name: "downstream", Severity: SeverityOK, Detail: "2/4 downstream nodes attached"},
		},
	}
	got := NagiosFormatter{}.Format(report)
	assert.Contains(t, got, "downstream=2")
}

func TestExtractLeadingCount(t *testing.T) {
	tests := []struct {
		detail string
		want   int
		ok     bool
	}{
		{"60 files awaiting archival", 60, true},
		{"2/4 downstream nodes attached", 2, true},
		{"attached to upstream", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		n, ok := extractLeadingCount(tt.detail)
		assert.Equal(t, tt.ok, ok, tt.detail)
		if ok {
			assert.Equal(t, tt.want, n, tt.detail)
		}
	}
}

func TestFormatterForDefaultsToText(t *testing.T) {
	assert.IsType(t, TextFormatter{}, FormatterFor("unknown"))
	assert.IsType(t, CSVFormatter{}, FormatterFor("csv"))
	assert.IsType(t, NagiosFormatter{}, FormatterFor("nagios"))
	assert.IsType(t, OptionFormatter{}, FormatterFor("optionformat"))
}

func TestOptionFormatterRendersKeyValuePairs(t *testing.T) {
	report := &CheckReport{
		Worst: SeverityOK,
		Items: []CheckItem{{Name: "daemon", Severity: SeverityOK, Detail: "repmgrd is running"}},
	}
	got := OptionFormatter{}.Format(report)
	assert.Contains(t, got, "overall=OK")
	assert.Contains(t, got, "daemon.status=OK")
	assert.Contains(t, got, "daemon.detail=repmgrd is running")
}
