package bot

import (
	"fmt"
	"strings"
	"time"

	"freegames_bot/internal/model"
)

const actionToggle = "toggle"

var muteDurations = map[string]time.Duration{
	"1h":  time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
}

// ParseMuteDuration parses the argument of /mute. Only 1h, 12h and 24h are accepted.
func ParseMuteDuration(args []string) (time.Duration, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("usage: /mute 1h | 12h | 24h")
	}
	d, ok := muteDurations[strings.ToLower(args[0])]
	if !ok {
		return 0, fmt.Errorf("invalid mute duration %q, use: 1h, 12h, 24h", args[0])
	}
	return d, nil
}

// ParseToggleData extracts the source tag from "toggle:<tag>" callback data.
func ParseToggleData(data string) (model.Source, error) {
	action, tag, ok := strings.Cut(data, ":")
	if !ok || action != actionToggle || tag == "" {
		return "", fmt.Errorf("invalid callback data %q", data)
	}
	return model.Source(strings.ToLower(tag)), nil
}

func toggleData(tag model.Source) string {
	return actionToggle + ":" + string(tag)
}
