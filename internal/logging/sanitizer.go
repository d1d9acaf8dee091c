package logging

import "regexp"

// Sanitizer redacts credentials before they reach a log sink. The
// engine handles OAuth tokens for the posting network and a shared
// cron secret; neither may ever appear in logs.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		redacted: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Model provider keys
		`sk-[A-Za-z0-9_-]{20,}`,
		// Bearer tokens (posting network, model API)
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// OAuth token fields in serialized payloads
		`(?i)(access|refresh)_token["'\s:=]+[a-zA-Z0-9._-]{16,}`,
		// Cron shared secret as query parameter
		`(?i)secret=[^&\s"']{8,}`,
		// Generic API keys and secrets
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)client[_-]?secret["'\s:=]+[a-zA-Z0-9_-]{16,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
