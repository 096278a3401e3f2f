package logbundle

import (
	"regexp"
	"sort"
	"strings"
)

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

// Pattern is a class of sensitive text removed from every bundle regardless of
// the caller's redaction list.
type Pattern struct {
	Name        string
	Re          *regexp.Regexp
	Replacement string
}

// DefaultPatterns strips addresses and credentials that commonly end up in
// application logs.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "email",
			Re:          regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			Replacement: "[EMAIL_REDACTED]",
		},
		{
			Name:        "ipv4",
			Re:          regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			Replacement: "[IP_REDACTED]",
		},
		{
			Name:        "ipv6",
			Re:          regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`),
			Replacement: "[IPV6_REDACTED]",
		},
		{
			Name:        "bearer",
			Re:          regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]+`),
			Replacement: "Bearer [TOKEN_REDACTED]",
		},
	}
}

// Redactor removes caller supplied tokens and pattern matches from text.
// It is not safe for concurrent use; build one per collection.
type Redactor struct {
	tokens   []string
	patterns []Pattern
	count    int
}

// NewRedactor builds a redactor for tokens. Empty tokens are dropped and the
// rest are applied longest first so a token that contains another is removed whole.
func NewRedactor(tokens []string, patterns []Pattern) *Redactor {
	kept := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		kept = append(kept, tok)
	}
	sort.SliceStable(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })

	return &Redactor{tokens: kept, patterns: patterns}
}

// Redact returns s with every token and pattern match replaced.
func (r *Redactor) Redact(s string) string {
	for _, tok := range r.tokens {
		if n := strings.Count(s, tok); n > 0 {
			r.count += n
			s = strings.ReplaceAll(s, tok, Placeholder)
		}
	}
	for _, p := range r.patterns {
		s = p.Re.ReplaceAllStringFunc(s, func(string) string {
			r.count++
			return p.Replacement
		})
	}
	return s
}

// Count returns how many spans have been replaced so far.
func (r *Redactor) Count() int {
	return r.count
}
