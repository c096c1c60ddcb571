// Package rules rewrites finalized transcript text with deterministic
// substitutions loaded from a rules file.
//
// One rule per line. Lines may be scoped to a speaker with a "user:" or
// "agent:" prefix; unscoped rules apply to both speakers.
//
//	pull request => PR
//	agent: s/\bgpt\b/GPT/g
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"voicelink/internal/domain"
)

// DefaultLoopLimit bounds how many passes Apply makes before giving up.
const DefaultLoopLimit = 30

// ErrUnstable is returned when rules keep rewriting each other's output.
var ErrUnstable = errors.New("substitution rules did not converge")

type compiledRule interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser parses one rule body into a compiled rule.
type RuleParser interface {
	CanParse(body string) bool
	Parse(body string) (compiledRule, error)
}

type scopedRule struct {
	// speaker is empty for rules that apply to everyone.
	speaker domain.Speaker
	rule    compiledRule
}

func (r scopedRule) appliesTo(speaker domain.Speaker) bool {
	return r.speaker == "" || r.speaker == speaker
}

// Engine implements ports.RulesEngine.
type Engine struct {
	rules     []scopedRule
	loopLimit int
}

// NewEngine loads rules from path. A blank or missing path yields an engine
// that returns text unchanged.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	return NewEngineWithParsers(path, loopLimit, defaultRuleParsers())
}

func NewEngineWithParsers(path string, loopLimit int, parsers []RuleParser) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return newEngine(nil, loopLimit), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newEngine(nil, loopLimit), nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	return ParseEngine(string(contents), loopLimit, parsers)
}

// ParseEngine compiles rules from text.
func ParseEngine(contents string, loopLimit int, parsers []RuleParser) (*Engine, error) {
	if len(parsers) == 0 {
		parsers = defaultRuleParsers()
	}
	rules, err := parseRules(contents, parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return newEngine(rules, loopLimit), nil
}

func newEngine(rules []scopedRule, loopLimit int) *Engine {
	if loopLimit <= 0 {
		loopLimit = DefaultLoopLimit
	}
	return &Engine{rules: rules, loopLimit: loopLimit}
}

// Len reports how many rules were loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply runs every rule in scope for speaker until the text stops changing.
// When the loop limit is reached the last output is returned with ErrUnstable.
func (e *Engine) Apply(speaker domain.Speaker, text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for pass := 0; pass < e.loopLimit; pass++ {
		changed := false
		for _, scoped := range e.rules {
			if !scoped.appliesTo(speaker) {
				continue
			}
			if next, ok := scoped.rule.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}
	return result, fmt.Errorf("%w after %d passes", ErrUnstable, e.loopLimit)
}

func parseRules(contents string, parsers []RuleParser) ([]scopedRule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]scopedRule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		speaker, body := splitScope(line)
		rule, err := parseBody(body, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, scopedRule{speaker: speaker, rule: rule})
	}

	return rules, nil
}

func parseBody(body string, parsers []RuleParser) (compiledRule, error) {
	for _, parser := range parsers {
		if parser.CanParse(body) {
			return parser.Parse(body)
		}
	}
	return nil, errors.New("unsupported rule format")
}

func splitScope(line string) (domain.Speaker, string) {
	for _, speaker := range []domain.Speaker{domain.SpeakerUser, domain.SpeakerAgent} {
		prefix := string(speaker) + ":"
		if strings.HasPrefix(line, prefix) {
			return speaker, strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return "", line
}
