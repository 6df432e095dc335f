package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// recycleAfter bounds how many scans one detector serves. The detector
// keeps every finding it reports, so it is replaced periodically.
const recycleAfter = 500

// gitleaksScrubber uses the full gitleaks rule set. The detector is not
// safe for concurrent use, so scans are serialized.
type gitleaksScrubber struct {
	mu          sync.Mutex
	detector    *detect.Detector
	scans       int
	redaction   string
	newDetector func() (*detect.Detector, error)
}

// NewGitleaks creates a scrubber backed by the gitleaks default config.
// An empty redaction selects "[REDACTED]".
func NewGitleaks(redaction string) (Scrubber, error) {
	if redaction == "" {
		redaction = "[REDACTED]"
	}
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	return &gitleaksScrubber{
		detector:    d,
		redaction:   redaction,
		newDetector: detect.NewDetectorDefaultConfig,
	}, nil
}

func (g *gitleaksScrubber) Scrub(content string) *Result {
	result := newResult(content)

	g.mu.Lock()
	findings := g.detector.DetectString(content)
	g.scans++
	if g.scans >= recycleAfter {
		if d, err := g.newDetector(); err == nil {
			g.detector = d
			g.scans = 0
		}
	}
	g.mu.Unlock()

	secrets := make([]string, 0, len(findings))
	for _, f := range findings {
		result.add(Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Severity:    "high",
			Line:        f.StartLine,
		})
		if f.Secret != "" {
			secrets = append(secrets, f.Secret)
		}
	}

	// Longest first so a secret containing another is replaced whole.
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
	scrubbed := content
	for _, s := range secrets {
		scrubbed = strings.ReplaceAll(scrubbed, s, g.redaction)
	}
	result.Scrubbed = scrubbed
	return result
}

func (g *gitleaksScrubber) IsEnabled() bool {
	return true
}
