package logger

import (
	"regexp"
)

// SensitiveDataPatterns are replaced by "[REDACTED]" in logged string values
var SensitiveDataPatterns = []*regexp.Regexp{
	// Bearer tokens in Authorization headers
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-._~+/]+=*)`),
	// JWTs (signed asset URLs carry one in their query)
	regexp.MustCompile(`(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,}\.)[a-zA-Z0-9_-]{5,}`),
	// Query parameters produced by URL signing and access tokens
	regexp.MustCompile(`(?i)([?&](?:token|policy|access_token)=)([^&\s"]+)`),
	// Key/value secrets in free text
	regexp.MustCompile(`(?i)((?:secret|password|api_key|cma_token|cda_token)[\s:=]+)([^;,\s"]{5,})`),
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}

	return input
}
