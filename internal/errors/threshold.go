package errors

import (
	"fmt"
	"strings"
)

// ThresholdViolation reports one metric dimension that exceeded its ceiling.
type ThresholdViolation struct {
	Dimension string
	Count     int
	Threshold int
}

func (v *ThresholdViolation) Error() string {
	return fmt.Sprintf("%s count (%d) exceeds threshold (%d)", v.Dimension, v.Count, v.Threshold)
}

func (v *ThresholdViolation) Is(target error) bool {
	return target == ErrThresholdViolation
}

// Violations aggregates every exceeded dimension of a single evaluation.
type Violations []*ThresholdViolation

func (vs Violations) Error() string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.Error())
	}
	return strings.Join(parts, "; ")
}

func (vs Violations) Is(target error) bool {
	return target == ErrThresholdViolation && len(vs) > 0
}

// PolicyViolation reports a failed threshold policy expression.
type PolicyViolation struct {
	Expression string
	Message    string
}

func (p *PolicyViolation) Error() string {
	if p.Message != "" {
		return p.Message
	}
	return fmt.Sprintf("threshold policy %q evaluated to false", p.Expression)
}

func (p *PolicyViolation) Is(target error) bool {
	return target == ErrThresholdViolation
}
