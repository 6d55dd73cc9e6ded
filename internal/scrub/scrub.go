// Package scrub redacts credential material from text before it leaves the
// gateway. Driver errors routinely echo connection strings back at the
// caller; every error message and log line passes through a Scrubber first.
package scrub

import (
	"fmt"
	"regexp"
)

// Rule is a single redaction rule: any match of Pattern is replaced with
// Replacement. Replacement supports ${n} group references.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Scrubber applies an ordered list of redaction rules to outgoing text.
// Safe for concurrent use once built.
type Scrubber struct {
	rules []compiledRule
}

// DefaultRules covers the places credentials usually leak into driver
// errors: keyword/value connection strings, URL-style connection strings,
// and PGPASSWORD-style environment assignments.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `(?i)\b(password|passwd|pwd)\s*=\s*[^\s&;,]+`, Replacement: `${1}=[redacted]`},
		{Pattern: `(?i)\b(postgres(?:ql)?://[^:/@\s]+):[^@\s]*@`, Replacement: `${1}:[redacted]@`},
		{Pattern: `(?i)\b(pgpassword)=\S+`, Replacement: `${1}=[redacted]`},
	}
}

// New compiles extra on top of DefaultRules. Returns an error if any
// pattern is not a valid regular expression.
func New(extra []Rule) (*Scrubber, error) {
	rules := append(DefaultRules(), extra...)
	compiled := make([]compiledRule, len(rules))
	for i, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid scrub regex pattern %q: %v", rule.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: rule.Replacement}
	}
	return &Scrubber{rules: compiled}, nil
}

// String applies every rule to msg, in order, and returns the result.
func (s *Scrubber) String(msg string) string {
	for _, rule := range s.rules {
		msg = rule.pattern.ReplaceAllString(msg, rule.replacement)
	}
	return msg
}
