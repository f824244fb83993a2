// Package service holds the dashboard actions. Every exported method returns
// (T, error) where the error is classified by appErrors.
package service

import (
	"log/slog"
	"regexp"
	"strings"
)

func moduleLogger(l *slog.Logger, module string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("module", module)
}

var emailPattern = regexp.MustCompile(`^[^\s@<>,;]+@[^\s@<>,;]+\.[^\s@<>,;]+$`)

// ValidEmail is the simple shape check used everywhere an address is accepted.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}
