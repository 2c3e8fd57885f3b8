package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/reachend/auth-service/internal/core/domain"
)

// LogNotifier writes notifications to the service log instead of delivering
// them. The body, which carries reset secrets, is only logged at debug level.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, msg domain.Notification) error {
	n.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("notification")
	n.log.Debug().Str("to", msg.To).Str("body", msg.HTMLBody).Msg("notification body")
	return nil
}
