package models

import (
	"fmt"
	"strings"
)

// Severity classifies how a FAR cost principle treats a matching cost.
type Severity string

const (
	SeverityExpresslyUnallowable Severity = "EXPRESSLY_UNALLOWABLE"
	SeverityLimitedAllowable     Severity = "LIMITED_ALLOWABLE"
)

// Rank orders severities for rule priority. Lower ranks are scanned first.
func (s Severity) Rank() int {
	switch s {
	case SeverityExpresslyUnallowable:
		return 0
	case SeverityLimitedAllowable:
		return 1
	default:
		return 2
	}
}

// Status returns the compliance status a match on this severity produces.
func (s Severity) Status() ComplianceStatus {
	if s == SeverityExpresslyUnallowable {
		return StatusRed
	}
	return StatusYellow
}

// ParseSeverity normalizes a severity string. Unknown values are rejected.
func ParseSeverity(value string) (Severity, error) {
	switch Severity(strings.ToUpper(strings.TrimSpace(value))) {
	case SeverityExpresslyUnallowable:
		return SeverityExpresslyUnallowable, nil
	case SeverityLimitedAllowable:
		return SeverityLimitedAllowable, nil
	default:
		return "", fmt.Errorf("unknown severity %q", value)
	}
}

// FarRule is a single cost-allowability rule. Section is the stable identifier.
type FarRule struct {
	Section     string   `json:"section" yaml:"section"`
	Title       string   `json:"title" yaml:"title"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Issue formats the rule as "<title> (<section>)".
func (r *FarRule) Issue() string {
	return fmt.Sprintf("%s (%s)", r.Title, r.Section)
}
