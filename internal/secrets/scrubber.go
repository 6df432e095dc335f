// Package secrets redacts credentials from repository content before it is
// embedded or handed to a language model.
package secrets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

// Scrubber detects and redacts secrets from content.
type Scrubber interface {
	// Scrub returns content with every detected secret replaced.
	Scrub(content string) *Result

	// IsEnabled reports whether scrubbing does anything.
	IsEnabled() bool
}

// New creates the regex scrubber. A nil config selects DefaultConfig.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return NoopScrubber{}, nil
	}
	return &scrubber{config: cfg}, nil
}

// FromSettings selects the scrubbing engine named in the settings.
func FromSettings(s config.SecretsConfig) (Scrubber, error) {
	if !s.Enabled {
		return NoopScrubber{}, nil
	}
	switch s.Engine {
	case "", "regex":
		return New(DefaultConfig())
	case "gitleaks":
		return NewGitleaks("")
	default:
		return nil, fmt.Errorf("unknown secrets engine %q", s.Engine)
	}
}

// scrubber is the regexp implementation. Compiled rules are immutable after
// Validate so Scrub is safe for concurrent use.
type scrubber struct {
	config *Config
}

type span struct {
	start, end int
}

func (s *scrubber) Scrub(content string) *Result {
	result := newResult(content)
	spans := make([]span, 0)

	for _, rule := range s.config.compiledRules {
		if len(rule.keywords) > 0 && !anyMatch(rule, content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.isAllowed(content[m[0]:m[1]]) {
				continue
			}
			result.add(Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				Line:        strings.Count(content[:m[0]], "\n") + 1,
			})
			spans = append(spans, span{m[0], m[1]})
		}
	}

	if len(spans) > 0 {
		result.Scrubbed = redactSpans(content, spans, s.config.RedactionString)
	}
	return result
}

func (s *scrubber) IsEnabled() bool {
	return true
}

func (s *scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

func anyMatch(rule *compiledRule, content string) bool {
	for _, kw := range rule.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// redactSpans merges overlapping spans and replaces each with replacement.
func redactSpans(content string, spans []span, replacement string) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, sp := range merged {
		b.WriteString(content[prev:sp.start])
		b.WriteString(replacement)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

// NoopScrubber returns content unchanged.
type NoopScrubber struct{}

func (NoopScrubber) Scrub(content string) *Result { return newResult(content) }

func (NoopScrubber) IsEnabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = NoopScrubber{}
)
