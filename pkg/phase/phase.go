// Package phase defines the ordered pipeline phases and the static
// dependency graph between them.
package phase

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase identifies one validation stage of the pipeline.
type Phase int

// Pipeline phases in execution order. PreValidation is the optional head
// gate that precedes the 0-indexed main sequence.
const (
	PreValidation  Phase = -1
	Stories        Phase = 0
	Infrastructure Phase = 1
	SmokeTest      Phase = 2
	Development    Phase = 3
	QAMerge        Phase = 4
)

// String returns the canonical lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PreValidation:
		return "prevalidation"
	case Stories:
		return "stories"
	case Infrastructure:
		return "infrastructure"
	case SmokeTest:
		return "smoketest"
	case Development:
		return "development"
	case QAMerge:
		return "qamerge"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// DisplayName returns the human-facing phase name.
func (p Phase) DisplayName() string {
	switch p {
	case PreValidation:
		return "Pre-Validation"
	case Stories:
		return "Stories"
	case Infrastructure:
		return "Infrastructure"
	case SmokeTest:
		return "Smoke Test"
	case Development:
		return "Development"
	case QAMerge:
		return "QA Merge"
	default:
		return p.String()
	}
}

// Parse accepts a phase number ("-1".."4") or a name ("stories", "Smoke Test")
// and returns the matching Phase.
func Parse(s string) (Phase, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		p := Phase(n)
		if p.known() {
			return p, nil
		}
		return 0, fmt.Errorf("unknown phase number %d", n)
	}

	normalized := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(s, "-", ""), " ", ""))
	for _, p := range All() {
		if strings.ReplaceAll(p.String(), "-", "") == normalized {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// All returns every defined phase in execution order.
func All() []Phase {
	return []Phase{PreValidation, Stories, Infrastructure, SmokeTest, Development, QAMerge}
}

func (p Phase) known() bool {
	for _, q := range All() {
		if p == q {
			return true
		}
	}
	return false
}
