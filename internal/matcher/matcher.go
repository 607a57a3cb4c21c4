// Package matcher decides which rules, and therefore which transform chains,
// apply to a module path.
package matcher

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// PatternError reports a rule whose test pattern cannot be compiled.
// It is a configuration error and is returned before any build starts.
type PatternError struct {
	Index   int
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rule %d: empty test pattern", e.Index)
	}
	return fmt.Sprintf("rule %d: invalid test pattern %q: %v", e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Match is a rule that applies to a path, with its declaration index.
type Match struct {
	Index int
	Rule  core.Rule
}

type compiledRule struct {
	rule    core.Rule
	test    *regexp.Regexp
	include []string
	exclude []string
}

// Matcher evaluates an ordered rule list against module paths.
type Matcher struct {
	rules []compiledRule
}

// New compiles rules. Relative include/exclude prefixes are resolved against root.
func New(rules []core.Rule, root string) (*Matcher, error) {
	m := &Matcher{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if strings.TrimSpace(r.Test) == "" {
			return nil, &PatternError{Index: i}
		}
		re, err := regexp.Compile(r.Test)
		if err != nil {
			return nil, &PatternError{Index: i, Pattern: r.Test, Err: err}
		}
		m.rules = append(m.rules, compiledRule{
			rule:    r,
			test:    re,
			include: normalizePrefixes(r.Include, root),
			exclude: normalizePrefixes(r.Exclude, root),
		})
	}
	return m, nil
}

// Match returns every rule that applies to path, in declaration order.
// A later rule is never shadowed by an earlier match.
func (m *Matcher) Match(path string) []Match {
	p := filepath.ToSlash(filepath.Clean(path))

	var matches []Match
	for i, r := range m.rules {
		if !r.test.MatchString(p) {
			continue
		}
		if len(r.include) > 0 && !underAny(p, r.include) {
			continue
		}
		if underAny(p, r.exclude) {
			continue
		}
		matches = append(matches, Match{Index: i, Rule: r.rule})
	}
	return matches
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

func normalizePrefixes(prefixes []string, root string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		out = append(out, filepath.ToSlash(filepath.Clean(p)))
	}
	return out
}

// underAny reports whether p equals or lies below one of the prefixes.
// Prefixes match whole path segments: /src does not cover /srcfoo.
func underAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix || prefix == "/" {
			return true
		}
		if strings.HasPrefix(p, prefix) && p[len(prefix)] == '/' {
			return true
		}
	}
	return false
}
