// Package otp locates one-time passcodes inside free-form SMS bodies.
//
// Extraction is a cascade of ordered rules: the primary keyword rule first,
// then the fallback rules in fixed order. The first rule producing a
// non-empty capture wins and no later rule is evaluated. A message without a
// code is absence, not an error.
package otp

import "regexp"

// Rule is one step of the extraction cascade. The first capture group of
// Pattern is the code; a pattern without groups yields the whole match.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// PrimaryRule matches a code/password keyword in English or Russian followed
// by the nearest run of 4-8 digits.
var PrimaryRule = Rule{
	Name:    "keyword",
	Pattern: regexp.MustCompile(`(?i)(?:code|код|otp|password|пароль)[^\d]*(\d{4,8})`),
}

// FallbackRules are tried in order when the primary rule finds nothing.
//
// The final rule accepts any six digits anywhere and can match unrelated
// numbers (prices, parts of phone numbers) in messages that failed every
// stricter rule.
var FallbackRules = []Rule{
	{Name: "isolated", Pattern: regexp.MustCompile(`\b(\d{4,8})\b`)},
	{Name: "verification", Pattern: regexp.MustCompile(`(?i)verification.*?(\d{4,8})`)},
	{Name: "confirm", Pattern: regexp.MustCompile(`(?i)confirm.*?(\d{4,8})`)},
	{Name: "one-time", Pattern: regexp.MustCompile(`(?i)one-time.*?(\d{4,8})`)},
	{Name: "six-digits", Pattern: regexp.MustCompile(`(\d{6})`)},
}

// Match is a successful extraction and the rule that produced it.
type Match struct {
	Code string
	Rule string
}

// Apply runs a single rule against text.
func (r Rule) Apply(text string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	code := m[0]
	if len(m) > 1 {
		code = m[1]
	}
	return code, code != ""
}

// Extract runs the primary rule, or override when it is non-nil.
func Extract(text string, override *regexp.Regexp) (string, bool) {
	rule := PrimaryRule
	if override != nil {
		rule = Rule{Name: "override", Pattern: override}
	}
	return rule.Apply(text)
}

// ExtractWithFallback runs the default primary rule followed by the
// fallback chain.
func ExtractWithFallback(text string) (string, bool) {
	m, ok := NewExtractor(nil).Find(text)
	return m.Code, ok
}

// Extractor binds an optional override of the primary rule to the fallback
// chain. The zero value uses the default primary rule.
type Extractor struct {
	rules []Rule
}

// NewExtractor returns an Extractor whose primary step is override when it
// is non-nil. The fallback chain is always appended.
func NewExtractor(override *regexp.Regexp) *Extractor {
	primary := PrimaryRule
	if override != nil {
		primary = Rule{Name: "override", Pattern: override}
	}
	rules := make([]Rule, 0, len(FallbackRules)+1)
	rules = append(rules, primary)
	rules = append(rules, FallbackRules...)
	return &Extractor{rules: rules}
}

// Rules returns the cascade in evaluation order.
func (e *Extractor) Rules() []Rule {
	if e == nil || e.rules == nil {
		return NewExtractor(nil).rules
	}
	return append([]Rule(nil), e.rules...)
}

// Find returns the first rule match in cascade order.
func (e *Extractor) Find(text string) (Match, bool) {
	for _, r := range e.Rules() {
		if code, ok := r.Apply(text); ok {
			return Match{Code: code, Rule: r.Name}, true
		}
	}
	return Match{}, false
}

// Extract returns the code found by the cascade.
func (e *Extractor) Extract(text string) (string, bool) {
	m, ok := e.Find(text)
	return m.Code, ok
}
