// Package policy screens user input before it reaches the model.
package policy

import (
	"regexp"
	"strings"
)

type ScreenDecision struct {
	Blocked bool
	Reason  string
}

var (
	blockedInputPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bignore\s+(all\s+)?previous\s+instructions\b`),
		regexp.MustCompile(`(?i)\bsystem\s+override\b`),
		regexp.MustCompile(`(?i)\bdeveloper\s+mode\b`),
		regexp.MustCompile(`(?i)\bjailbreak\b`),
		regexp.MustCompile(`(?i)\b(print|show|reveal|dump)\b.*\b(system\s+prompt|api[_ -]?key|token|secret)\b`),
	}
	blockedInputKeywords = []string{
		"이전 지시 무시", "시스템 프롬프트 출력",
	}
)

// ScreenInput decides whether a user message is allowed to reach the model.
// Blocked input is answered with a fixed warning and consumes no credit.
func ScreenInput(input string) ScreenDecision {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return ScreenDecision{}
	}

	for _, re := range blockedInputPatterns {
		if re.MatchString(in) {
			return ScreenDecision{
				Blocked: true,
				Reason:  "input matches a prompt-injection pattern",
			}
		}
	}
	for _, kw := range blockedInputKeywords {
		if strings.Contains(in, kw) {
			return ScreenDecision{
				Blocked: true,
				Reason:  "input matches a prompt-injection pattern",
			}
		}
	}
	return ScreenDecision{}
}
