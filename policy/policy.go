// Package policy evaluates admin-configured deny rules against request
// drafts before they are submitted. Rules are expr expressions over the
// request context; the first rule that evaluates to true denies the draft.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
)

// RequestContext is the environment a rule is evaluated against.
type RequestContext struct {
	Title       string
	Year        int
	Kind        string // "movie" or "tv"
	Seasons     []int
	SeasonCount int
	Phone       string
	DisplayName string
	UsedToday   int
	IsAdmin     bool
}

// RuleError describes a rule that failed to compile
type RuleError struct {
	Rule   string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *RuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy rule %q: %s: %v", e.Rule, e.Reason, e.Err)
	}
	return fmt.Sprintf("policy rule %q: %s", e.Rule, e.Reason)
}

// Unwrap returns the underlying compilation error
func (e *RuleError) Unwrap() error {
	return e.Err
}

type compiledRule struct {
	source  string
	program *vm.Program
}

// Engine holds the compiled deny rules
type Engine struct {
	rules  []compiledRule
	logger zerolog.Logger
}

// NewEngine compiles the configured rules. An empty rule list yields an
// engine that allows everything.
func NewEngine(rules []string, logger zerolog.Logger) (*Engine, error) {
	engine := &Engine{
		rules:  make([]compiledRule, 0, len(rules)),
		logger: logger.With().Str("component", "policy").Logger(),
	}

	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			return nil, &RuleError{Rule: rule, Reason: "empty rule"}
		}

		program, err := expr.Compile(rule,
			expr.Env(staticEnv()),
			expr.AllowUndefinedVariables(),
			expr.AsBool(),
		)
		if err != nil {
			return nil, &RuleError{Rule: rule, Reason: "failed to compile rule", Err: err}
		}

		engine.rules = append(engine.rules, compiledRule{source: rule, program: program})
	}

	return engine, nil
}

// Len returns the number of compiled rules
func (e *Engine) Len() int {
	return len(e.rules)
}

// Evaluate runs the deny rules against a request context. It returns the
// source of the first matching rule, or the empty string when no rule
// matches. A rule that errors at runtime is skipped rather than treated
// as a match.
func (e *Engine) Evaluate(rc RequestContext) (string, bool) {
	if len(e.rules) == 0 {
		return "", false
	}

	env := runtimeEnv(rc)
	for _, rule := range e.rules {
		result, err := expr.Run(rule.program, env)
		if err != nil {
			e.logger.Warn().Err(err).Str("rule", rule.source).Msg("Policy rule failed at runtime")
			continue
		}
		if result.(bool) {
			return rule.source, true
		}
	}

	return "", false
}

// staticEnv is the environment used for compile-time validation.
func staticEnv() map[string]any {
	env := make(map[string]any, 16)
	addHelperFunctions(env)
	return env
}

// runtimeEnv builds the evaluation environment for one request.
func runtimeEnv(rc RequestContext) map[string]any {
	env := make(map[string]any, 24)
	addHelperFunctions(env)

	env["Title"] = rc.Title
	env["Year"] = rc.Year
	env["Kind"] = rc.Kind
	env["Seasons"] = rc.Seasons
	env["SeasonCount"] = rc.SeasonCount
	env["Phone"] = rc.Phone
	env["DisplayName"] = rc.DisplayName
	env["UsedToday"] = rc.UsedToday
	env["IsAdmin"] = rc.IsAdmin

	env["isMovie"] = func() bool { return rc.Kind == "movie" }
	env["isShow"] = func() bool { return rc.Kind == "tv" }
	env["requestedBy"] = func(phone string) bool {
		return strings.EqualFold(rc.Phone, phone)
	}

	return env
}

// addHelperFunctions adds the string and time helpers rules can call.
func addHelperFunctions(env map[string]any) {
	env["contains"] = func(str, substr string) bool {
		return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
	}
	env["startsWith"] = func(str, prefix string) bool {
		return strings.HasPrefix(strings.ToLower(str), strings.ToLower(prefix))
	}
	env["endsWith"] = func(str, suffix string) bool {
		return strings.HasSuffix(strings.ToLower(str), strings.ToLower(suffix))
	}
	env["lower"] = strings.ToLower
	env["upper"] = strings.ToUpper
	env["now"] = time.Now
	env["hour"] = func() int {
		return time.Now().Hour()
	}
}
