package tool

import (
	"fmt"
	"regexp"
	"strings"
)

// DenyRule blocks input matching Pattern unless it also matches Unless.
type DenyRule struct {
	Pattern string
	Unless  string
}

// DefaultShellDenyPatterns block commands that destroy the host or run
// untrusted remote code.
var DefaultShellDenyPatterns = []DenyRule{
	{Pattern: `rm\s+-[rRf]{1,3}\s+/`},
	{Pattern: `rm\s+-[rRf]{1,3}\s+~`},
	{Pattern: `rm\s+-[rRf]{1,3}\s+\*`},
	{Pattern: `>\s*/dev/sd`},
	{Pattern: `mkfs\.`},
	{Pattern: `dd\s+if=`},
	{Pattern: `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`},
	{Pattern: `chmod\s+-R\s+777\s+/`},
	{Pattern: `curl.*\|\s*(bash|sh)\b`},
	{Pattern: `wget.*\|\s*(bash|sh)\b`},
}

// DefaultSQLDenyPatterns block DDL, unbounded writes and injection markers.
var DefaultSQLDenyPatterns = []DenyRule{
	{Pattern: `\bDROP\b`},
	{Pattern: `\bTRUNCATE\b`},
	{Pattern: `\bALTER\b`},
	{Pattern: `\bCREATE\b`},
	{Pattern: `\bDELETE\s+FROM\b`, Unless: `\bWHERE\b`},
	{Pattern: `\bUPDATE\b`, Unless: `\bWHERE\b`},
	{Pattern: `--`},
	{Pattern: `/\*`},
	{Pattern: `\bEXEC(UTE)?\b`},
	{Pattern: `\bxp_`},
}

type compiledRule struct {
	source string
	match  *regexp.Regexp
	unless *regexp.Regexp
}

// DenyList is an ordered set of case-insensitive rules checked before a
// command or statement is executed.
type DenyList struct {
	rules []compiledRule
}

// NewDenyList compiles the given rules.
func NewDenyList(rules ...DenyRule) (*DenyList, error) {
	d := &DenyList{}
	if err := d.Extend(rules...); err != nil {
		return nil, err
	}
	return d, nil
}

// Extend adds rules to the list.
func (d *DenyList) Extend(rules ...DenyRule) error {
	for _, r := range rules {
		match, err := regexp.Compile("(?is)" + r.Pattern)
		if err != nil {
			return fmt.Errorf("invalid deny pattern %q: %w", r.Pattern, err)
		}
		c := compiledRule{source: r.Pattern, match: match}
		if r.Unless != "" {
			c.unless, err = regexp.Compile("(?is)" + r.Unless)
			if err != nil {
				return fmt.Errorf("invalid deny exception %q: %w", r.Unless, err)
			}
		}
		d.rules = append(d.rules, c)
	}
	return nil
}

// ExtendPatterns adds plain patterns without exceptions.
func (d *DenyList) ExtendPatterns(patterns ...string) error {
	rules := make([]DenyRule, len(patterns))
	for i, p := range patterns {
		rules[i] = DenyRule{Pattern: p}
	}
	return d.Extend(rules...)
}

// Match reports the first rule matching input. Runs of whitespace are
// collapsed first so spacing tricks do not slip past a pattern.
func (d *DenyList) Match(input string) (string, bool) {
	if d == nil {
		return "", false
	}
	normalized := collapseWhitespace(input)
	for _, r := range d.rules {
		if !r.match.MatchString(normalized) {
			continue
		}
		if r.unless != nil && r.unless.MatchString(normalized) {
			continue
		}
		return r.source, true
	}
	return "", false
}

// Len returns the number of rules.
func (d *DenyList) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rules)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
