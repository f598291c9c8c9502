package threshold

import (
	"strconv"
	"strings"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
)

// Disabled is the ceiling value that turns a dimension off. Any negative
// value has the same effect.
const Disabled = -1

// Thresholds holds the nine per-dimension ceilings of a run
type Thresholds struct {
	Critical              int `yaml:"critical"`
	High                  int `yaml:"high"`
	Medium                int `yaml:"medium"`
	Low                   int `yaml:"low"`
	Unassigned            int `yaml:"unassigned"`
	PolicyViolationsFail  int `yaml:"policyViolationsFail"`
	PolicyViolationsWarn  int `yaml:"policyViolationsWarn"`
	PolicyViolationsInfo  int `yaml:"policyViolationsInfo"`
	PolicyViolationsTotal int `yaml:"policyViolationsTotal"`
}

// None returns a threshold set with every dimension disabled
func None() Thresholds {
	return Thresholds{
		Critical:              Disabled,
		High:                  Disabled,
		Medium:                Disabled,
		Low:                   Disabled,
		Unassigned:            Disabled,
		PolicyViolationsFail:  Disabled,
		PolicyViolationsWarn:  Disabled,
		PolicyViolationsInfo:  Disabled,
		PolicyViolationsTotal: Disabled,
	}
}

type dimension struct {
	name    string
	ceiling int
	count   int
}

// dimensions lists every ceiling with its metric, in evaluation order
func (t Thresholds) dimensions(m *dtrack.Metrics) []dimension {
	return []dimension{
		{"critical", t.Critical, m.Critical},
		{"high", t.High, m.High},
		{"medium", t.Medium, m.Medium},
		{"low", t.Low, m.Low},
		{"unassigned", t.Unassigned, m.Unassigned},
		{"policyViolationsFail", t.PolicyViolationsFail, m.PolicyViolationsFail},
		{"policyViolationsWarn", t.PolicyViolationsWarn, m.PolicyViolationsWarn},
		{"policyViolationsInfo", t.PolicyViolationsInfo, m.PolicyViolationsInfo},
		{"policyViolationsTotal", t.PolicyViolationsTotal, m.PolicyViolationsTotal},
	}
}

// IsAnyEnabled reports whether at least one ceiling is enforced
func (t Thresholds) IsAnyEnabled() bool {
	for _, d := range t.dimensions(&dtrack.Metrics{}) {
		if d.ceiling >= 0 {
			return true
		}
	}
	return false
}

// Evaluate checks the snapshot and returns the first exceeded dimension as a
// *errors.ThresholdViolation. A count equal to its ceiling passes.
func (t Thresholds) Evaluate(m *dtrack.Metrics) error {
	for _, d := range t.dimensions(m) {
		if d.ceiling >= 0 && d.count > d.ceiling {
			return &errors.ThresholdViolation{Dimension: d.name, Count: d.count, Threshold: d.ceiling}
		}
	}
	return nil
}

// EvaluateAll checks every dimension and returns all exceeded ones as
// errors.Violations, or nil.
func (t Thresholds) EvaluateAll(m *dtrack.Metrics) error {
	var violations errors.Violations
	for _, d := range t.dimensions(m) {
		if d.ceiling >= 0 && d.count > d.ceiling {
			violations = append(violations, &errors.ThresholdViolation{Dimension: d.name, Count: d.count, Threshold: d.ceiling})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return violations
}

// Parse converts a configured threshold. An empty value disables the
// dimension; anything that is not an integer is a configuration error.
func Parse(name, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Disabled, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewConfigurationf("threshold %s must be an integer, got %q", name, raw)
	}
	return value, nil
}
