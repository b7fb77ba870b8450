// Package rules provides the CEL-Go based fraud heuristic engine.
package rules

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/txguard/internal/domain"
)

// Engine evaluates operator-defined heuristic rules against transactions.
// It implements domain.FraudHeuristics.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	rules      []*CompiledRule
	maxWorkers int
	location   *time.Location
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.HeuristicRule
	Program cel.Program
}

// NewEngine creates a new heuristic engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Transaction fields exposed to rule expressions
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("from_account", cel.StringType),
		cel.Variable("to_account", cel.StringType),
		cel.Variable("has_from", cel.BoolType),
		cel.Variable("has_to", cel.BoolType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		maxWorkers: maxWorkers,
		location:   time.UTC,
	}, nil
}

// SetLocation sets the time zone the hour variable is read in. It should
// match the validator's off-hours location.
func (e *Engine) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	e.mu.Lock()
	e.location = loc
	e.mu.Unlock()
}

// ValidateRule compiles a rule without changing the loaded set.
func (e *Engine) ValidateRule(rule *domain.HeuristicRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule. A rule with the same ID is replaced
// in place; new rules are appended.
func (e *Engine) LoadRule(rule *domain.HeuristicRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	for i, existing := range e.rules {
		if existing.Rule.ID == rule.ID {
			e.rules[i] = compiled
			return nil
		}
	}
	e.rules = append(e.rules, compiled)
	return nil
}

// UnloadRule removes a rule from the loaded set. It reports whether the
// rule was loaded.
func (e *Engine) UnloadRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.rules {
		if existing.Rule.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(rules []*domain.HeuristicRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces the loaded set. On a compile error the previous
// set stays active.
func (e *Engine) ReloadRules(rules []*domain.HeuristicRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make([]*CompiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	e.rules = next
	return nil
}

// Evaluate runs every loaded rule and returns a signal for each rule whose
// expression is true, in load order. Rules that fail at runtime (a missing
// metadata key, for example) are skipped.
func (e *Engine) Evaluate(tx *domain.Transaction) []domain.FraudSignal {
	e.mu.RLock()
	rules := make([]*CompiledRule, len(e.rules))
	copy(rules, e.rules)
	loc := e.location
	e.mu.RUnlock()

	if len(rules) == 0 || tx == nil {
		return nil
	}

	activation := Activation(tx, loc)

	fired := make([]bool, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			fired[idx] = e.evaluateRule(r, activation, tx.ID)
		}(i, rule)
	}

	wg.Wait()

	var signals []domain.FraudSignal
	for i, r := range rules {
		if fired[i] {
			signals = append(signals, signalFor(r.Rule))
		}
	}
	return signals
}

func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, txID string) bool {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		slog.Debug("heuristic rule evaluation failed",
			"rule_id", rule.Rule.ID,
			"tx_id", txID,
			"error", err,
		)
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

func signalFor(rule *domain.HeuristicRule) domain.FraudSignal {
	family := rule.Family
	if family == "" {
		family = domain.FamilyPattern
	}
	warning := rule.Warning
	if warning == "" {
		warning = fmt.Sprintf("heuristic rule %s matched", rule.Name)
	}
	return domain.FraudSignal{
		Name:    rule.ID,
		Family:  family,
		Weight:  rule.Weight,
		Warning: warning,
	}
}

// Activation builds the CEL variables for a transaction. hour is the
// timestamp's hour in loc.
func Activation(tx *domain.Transaction, loc *time.Location) map[string]any {
	if loc == nil {
		loc = time.UTC
	}
	from, to := "", ""
	if tx.FromAccount != nil {
		from = *tx.FromAccount
	}
	if tx.ToAccount != nil {
		to = *tx.ToAccount
	}
	metadata := tx.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return map[string]any{
		"amount":       tx.Amount.InexactFloat64(),
		"currency":     tx.Currency,
		"tx_type":      string(tx.Type),
		"user_id":      tx.UserID,
		"from_account": from,
		"to_account":   to,
		"has_from":     tx.HasFromAccount(),
		"has_to":       tx.HasToAccount(),
		"hour":         int64(tx.Timestamp.In(loc).Hour()),
		"metadata":     metadata,
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// GetLoadedRules returns the loaded rule definitions in evaluation order.
func (e *Engine) GetLoadedRules() []*domain.HeuristicRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.HeuristicRule, 0, len(e.rules))
	for _, compiled := range e.rules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
	return nil
}

func (e *Engine) compileRule(rule *domain.HeuristicRule) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if rule.Weight < 0 || rule.Weight > 100 {
		return nil, fmt.Errorf("rule %s: weight %d outside [0,100]", rule.ID, rule.Weight)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
