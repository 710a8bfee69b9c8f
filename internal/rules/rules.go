// Package rules is the deterministic first pass of classification: an ordered
// table of payee substrings, each mapped to a category.
package rules

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Rule maps a payee substring to a category. Pattern matching ignores case.
type Rule struct {
	Pattern  string `toml:"pattern"`
	Category string `toml:"category"`
}

// Matcher holds an ordered rule table. It is read-only after construction and
// safe for concurrent use.
type Matcher struct {
	rules []Rule
}

// New builds a matcher over rules in the given order. Rules with an empty
// pattern or category are dropped.
func New(rules []Rule) *Matcher {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		p := strings.TrimSpace(r.Pattern)
		c := strings.TrimSpace(r.Category)
		if p == "" || c == "" {
			continue
		}
		out = append(out, Rule{Pattern: strings.ToLower(p), Category: c})
	}
	return &Matcher{rules: out}
}

// Match returns the category of the first rule whose pattern occurs in payee.
func (m *Matcher) Match(payee string) (string, bool) {
	if m == nil || payee == "" {
		return "", false
	}
	lower := strings.ToLower(payee)
	for _, r := range m.rules {
		if strings.Contains(lower, r.Pattern) {
			return r.Category, true
		}
	}
	return "", false
}

// Len reports the number of active rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

// Rules returns a copy of the table with patterns in their matched (lowercase) form.
func (m *Matcher) Rules() []Rule {
	if m == nil {
		return nil
	}
	return append([]Rule(nil), m.rules...)
}

var defaultRules = []Rule{
	{Pattern: "SAFEWAY", Category: "Groceries"},
	{Pattern: "TRADER JOE", Category: "Groceries"},
	{Pattern: "WHOLE FOODS", Category: "Groceries"},
	{Pattern: "SHELL", Category: "Auto:Fuel"},
	{Pattern: "CHEVRON", Category: "Auto:Fuel"},
	{Pattern: "NETFLIX", Category: "Subscriptions"},
	{Pattern: "SPOTIFY", Category: "Subscriptions"},
	{Pattern: "UBER", Category: "Transport"},
	{Pattern: "LYFT", Category: "Transport"},
	{Pattern: "PG&E", Category: "Utilities"},
	{Pattern: "PAYROLL", Category: "Income"},
}

// Default returns the built-in table.
func Default() *Matcher { return New(defaultRules) }

type ruleFile struct {
	Rule []Rule `toml:"rule"`
}

// LoadFile reads an ordered table from a TOML file of [[rule]] entries:
//
//	[[rule]]
//	pattern = "SAFEWAY"
//	category = "Groceries"
func LoadFile(path string) (*Matcher, error) {
	var raw ruleFile
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse %s: unknown key %s", path, undecoded[0])
	}
	for i, r := range raw.Rule {
		if strings.TrimSpace(r.Pattern) == "" || strings.TrimSpace(r.Category) == "" {
			return nil, fmt.Errorf("parse %s: rule %d needs both pattern and category", path, i+1)
		}
	}
	return New(raw.Rule), nil
}
