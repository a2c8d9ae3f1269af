package realtime

// MessageTypeNotification tags live messages carrying a persisted notification.
const MessageTypeNotification = "notification"

// Message is the JSON envelope written to live connections.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
