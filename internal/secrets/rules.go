package secrets

// DefaultRules returns the credential patterns scrubbed from indexed source.
// They cover tokens commonly committed by accident; the gitleaks engine
// offers a much larger rule set at higher cost.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "private-key",
			Description: "Private Key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----[\s\S]*?-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Severity:    "high",
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `\b(?:A3T[A-Z0-9]|AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16}\b`,
			Severity:    "high",
		},
		{
			ID:          "github-token",
			Description: "GitHub Token",
			Pattern:     `\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}\b|\bgithub_pat_[A-Za-z0-9_]{22,}\b`,
			Severity:    "high",
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab Personal Access Token",
			Pattern:     `\bglpat-[A-Za-z0-9\-]{20,}\b`,
			Severity:    "high",
		},
		{
			ID:          "slack-token",
			Description: "Slack Token",
			Pattern:     `\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`,
			Severity:    "high",
		},
		{
			ID:          "stripe-key",
			Description: "Stripe Key",
			Pattern:     `\b(?:sk|rk)_(?:live|test)_[A-Za-z0-9]{24,}\b`,
			Severity:    "high",
		},
		{
			ID:          "google-api-key",
			Description: "Google API Key",
			Pattern:     `\bAIza[A-Za-z0-9_\-]{35}\b`,
			Severity:    "high",
		},
		{
			ID:          "groq-api-key",
			Description: "Groq API Key",
			Pattern:     `\bgsk_[A-Za-z0-9]{40,}\b`,
			Severity:    "high",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API Key",
			Pattern:     `\bsk-(?:proj-)?[A-Za-z0-9_\-]{40,}\b`,
			Severity:    "high",
		},
		{
			ID:          "database-url",
			Description: "Database URL with credentials",
			Pattern:     `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@[^\s'"]+`,
			Keywords:    []string{"://"},
			Severity:    "high",
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `\beyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`,
			Severity:    "medium",
		},
		{
			ID:          "generic-secret",
			Description: "Secret assignment",
			Pattern:     `(?i)(?:api[_-]?key|secret|password|passwd|access[_-]?token)["']?\s*[:=]\s*["']([^\s"']{12,})["']`,
			Keywords:    []string{"key", "secret", "pass", "token"},
			Severity:    "medium",
		},
	}
}
