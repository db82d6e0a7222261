package notification

import (
	"context"
	"log/slog"

	"github.com/congo-pay/gatekeeper/internal/logging"
)

const (
	// KindVerificationCode carries a one-time code to a contact point.
	KindVerificationCode = "verification_code"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Channel     string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
// Bodies are only logged when revealBody is set, since they carry codes.
type LoggerNotifier struct {
	logger     *slog.Logger
	revealBody bool
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger, revealBody bool) *LoggerNotifier {
	return &LoggerNotifier{logger: logger, revealBody: revealBody}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{"kind", message.Kind, "channel", message.Channel, "destination", logging.Mask(message.Destination)}
	if n.revealBody {
		attrs = append(attrs, "body", message.Body)
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
