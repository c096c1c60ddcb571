package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

func defaultRuleParsers() []RuleParser {
	return []RuleParser{sedRuleParser{}, literalRuleParser{}}
}

// literalRuleParser handles "from => to", matched case-insensitively.
type literalRuleParser struct{}

func (literalRuleParser) CanParse(body string) bool {
	return strings.Contains(body, "=>")
}

func (literalRuleParser) Parse(body string) (compiledRule, error) {
	return parseLiteralRule(body)
}

// sedRuleParser handles s/pattern/replacement/flags with any
// non-alphanumeric delimiter.
type sedRuleParser struct{}

func (sedRuleParser) CanParse(body string) bool {
	return len(body) > 1 && body[0] == 's' && !isWordOrSpace(body[1])
}

func (sedRuleParser) Parse(body string) (compiledRule, error) {
	return parseSedRule(body)
}

type literalRule struct {
	re *regexp.Regexp
	to string
}

func parseLiteralRule(body string) (compiledRule, error) {
	from, to, ok := strings.Cut(body, "=>")
	if !ok {
		return nil, errors.New("invalid literal rule")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{re: re, to: strings.TrimSpace(to)}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.to)
	return output, output != input
}

type sedRule struct {
	re     *regexp.Regexp
	repl   string
	global bool
}

func parseSedRule(body string) (compiledRule, error) {
	delim := body[1]
	pattern, pos, err := readDelimited(body, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	repl, pos, err := readDelimited(body, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	// Case-insensitive unless the pattern sets its own flags.
	inline := "i"
	global := false
	for _, flag := range strings.TrimSpace(body[pos:]) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return sedRule{re: re, repl: repl, global: global}, nil
}

func (r sedRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.repl)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.repl, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func readDelimited(body string, start int, delim byte) (string, int, error) {
	if start >= len(body) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var out strings.Builder
	for i := start; i < len(body); i++ {
		switch c := body[i]; {
		case c == '\\' && i+1 < len(body) && body[i+1] == delim:
			out.WriteByte(delim)
			i++
		case c == '\\' && i+1 < len(body):
			out.WriteByte(c)
			out.WriteByte(body[i+1])
			i++
		case c == delim:
			return out.String(), i + 1, nil
		default:
			out.WriteByte(c)
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordOrSpace(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == ' ' || c == '\t'
}
