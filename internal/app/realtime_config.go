package app

import (
	"strings"

	"github.com/charlesng35/taskboard/internal/realtime"
)

const defaultRelayChannel = "taskboard:live"

// ConnOptions converts RealtimeConfig into per-connection options.
func (c RealtimeConfig) ConnOptions() realtime.ConnOptions {
	return realtime.ConnOptions{
		SendBuffer:   c.SendBuffer,
		WriteTimeout: c.WriteTimeout,
	}
}

// Channel returns the relay pub/sub channel, falling back to the default.
func (c RealtimeConfig) Channel() string {
	if channel := strings.TrimSpace(c.RelayChannel); channel != "" {
		return channel
	}
	return defaultRelayChannel
}
