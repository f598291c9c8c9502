package threshold

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
)

// PolicyConfig defines an optional CEL gate evaluated after the ceilings
type PolicyConfig struct {
	// Expression must evaluate to true for the run to pass.
	// Available variables (all int):
	//   critical, high, medium, low, unassigned, suppressed,
	//   policyViolationsFail, policyViolationsWarn, policyViolationsInfo, policyViolationsTotal
	Expression string `yaml:"expression" json:"expression"`

	// FailureMessage replaces the generated message when the policy fails (optional)
	FailureMessage string `yaml:"failureMessage" json:"failureMessage"`
}

// PolicyEngine evaluates a compiled CEL expression against a metrics snapshot
type PolicyEngine struct {
	logger  *slog.Logger
	config  PolicyConfig
	program cel.Program
}

// NewPolicyEngine compiles the expression. It fails if the expression does not
// type-check or does not return a boolean.
func NewPolicyEngine(logger *slog.Logger, config PolicyConfig) (*PolicyEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Expression == "" {
		return nil, errors.NewConfigurationf("threshold policy expression is empty")
	}

	env, err := cel.NewEnv(
		cel.Variable("critical", cel.IntType),
		cel.Variable("high", cel.IntType),
		cel.Variable("medium", cel.IntType),
		cel.Variable("low", cel.IntType),
		cel.Variable("unassigned", cel.IntType),
		cel.Variable("suppressed", cel.IntType),
		cel.Variable("policyViolationsFail", cel.IntType),
		cel.Variable("policyViolationsWarn", cel.IntType),
		cel.Variable("policyViolationsInfo", cel.IntType),
		cel.Variable("policyViolationsTotal", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(config.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.NewConfigurationf("failed to compile threshold policy: %v", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, errors.NewConfigurationf("threshold policy must return a boolean, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &PolicyEngine{
		logger:  logger,
		config:  config,
		program: program,
	}, nil
}

// Expression returns the source expression
func (e *PolicyEngine) Expression() string {
	return e.config.Expression
}

// Evaluate runs the policy. A false result is returned as *errors.PolicyViolation.
func (e *PolicyEngine) Evaluate(m *dtrack.Metrics) error {
	input := map[string]interface{}{
		"critical":              int64(m.Critical),
		"high":                  int64(m.High),
		"medium":                int64(m.Medium),
		"low":                   int64(m.Low),
		"unassigned":            int64(m.Unassigned),
		"suppressed":            int64(m.Suppressed),
		"policyViolationsFail":  int64(m.PolicyViolationsFail),
		"policyViolationsWarn":  int64(m.PolicyViolationsWarn),
		"policyViolationsInfo":  int64(m.PolicyViolationsInfo),
		"policyViolationsTotal": int64(m.PolicyViolationsTotal),
	}

	out, _, err := e.program.Eval(input)
	if err != nil {
		return fmt.Errorf("failed to evaluate threshold policy: %w", err)
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return fmt.Errorf("threshold policy did not return a boolean: %v", out.Value())
	}

	if passed {
		e.logger.Debug("threshold policy passed", "expression", e.config.Expression)
		return nil
	}

	e.logger.Warn("threshold policy failed",
		"expression", e.config.Expression,
		"critical", m.Critical,
		"high", m.High,
		"medium", m.Medium,
		"low", m.Low,
		"policy_violations_total", m.PolicyViolationsTotal)

	return &errors.PolicyViolation{Expression: e.config.Expression, Message: e.config.FailureMessage}
}
