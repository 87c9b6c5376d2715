package notifier

// TextNotifier defines a minimal text notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

// StructuredNotifier pushes formatted multi-section alerts.
type StructuredNotifier interface {
	SendStructured(msg StructuredMessage) error
}

// Noop drops every message. Used when no notifier is configured.
type Noop struct{}

func (Noop) SendText(string) error                  { return nil }
func (Noop) SendStructured(StructuredMessage) error { return nil }
