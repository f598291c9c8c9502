package threshold

import (
	"log/slog"
	"strings"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
	"github.com/daimoniac/dtrack-upload/internal/observability"
)

// Action controls what a violation does to the run
type Action string

const (
	ActionNone  Action = "none"
	ActionWarn  Action = "warn"
	ActionError Action = "error"
)

// ParseAction validates a threshold action. Empty means none.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ActionNone:
		return ActionNone, nil
	case ActionWarn:
		return ActionWarn, nil
	case ActionError:
		return ActionError, nil
	default:
		return "", errors.NewConfigurationf("threshold action must be one of none, warn, error, got %q", raw)
	}
}

// Gates reports whether the action can affect the run outcome
func (a Action) Gates() bool {
	return a == ActionWarn || a == ActionError
}

// Evaluator combines the ceilings with an optional policy expression
type Evaluator struct {
	Thresholds Thresholds
	// ReportAll aggregates every exceeded dimension instead of stopping at the first
	ReportAll bool
	Policy    *PolicyEngine
	Logger    *slog.Logger
}

// Enabled reports whether there is anything to evaluate
func (e *Evaluator) Enabled() bool {
	return e.Thresholds.IsAnyEnabled() || e.Policy != nil
}

// Evaluate checks the snapshot. Ceilings are checked first, the policy only
// when no ceiling was exceeded.
func (e *Evaluator) Evaluate(m *dtrack.Metrics) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.GetMetrics()

	var err error
	if e.ReportAll {
		err = e.Thresholds.EvaluateAll(m)
	} else {
		err = e.Thresholds.Evaluate(m)
	}
	if err == nil && e.Policy != nil {
		err = e.Policy.Evaluate(m)
	}

	if err != nil {
		if errors.Is(err, errors.ErrThresholdViolation) {
			metrics.ThresholdEvaluations.WithLabelValues("violated").Inc()
			logger.Warn("threshold exceeded", "reason", err.Error())
		} else {
			metrics.ThresholdEvaluations.WithLabelValues("error").Inc()
		}
		return err
	}

	metrics.ThresholdEvaluations.WithLabelValues("passed").Inc()
	logger.Info("thresholds passed",
		"critical", m.Critical,
		"high", m.High,
		"medium", m.Medium,
		"low", m.Low,
		"unassigned", m.Unassigned,
		"policy_violations_total", m.PolicyViolationsTotal)
	return nil
}
