package domain

import (
	"fmt"
	"strings"
)

// Mode selects how strictly a sweep run is gated.
type Mode string

const (
	ModeRelease   Mode = "release"
	ModeSmoke     Mode = "smoke"
	ModeIterative Mode = "iterative"
)

// ParseMode normalizes and validates a mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeRelease:
		return ModeRelease, nil
	case ModeSmoke:
		return ModeSmoke, nil
	case ModeIterative:
		return ModeIterative, nil
	default:
		return "", fmt.Errorf("mode unsupported: %q", raw)
	}
}
