// Package usecase implements the messaging side of outbox dispatch: the
// Sender port to the provider wrappers and the message.send handler.
package usecase

import (
	"context"
	"log/slog"

	"github.com/allisson/schoolops/internal/messaging/domain"
	outboxDomain "github.com/allisson/schoolops/internal/outbox/domain"
)

// Sender delivers one channel-send request. Real implementations wrap the
// SMS/email/WhatsApp providers, which live outside this core.
type Sender interface {
	Send(ctx context.Context, request *domain.SendRequest) error
}

// LogSender is the default Sender: it records the send instead of delivering
// it. Useful in development and as the wiring point for real providers.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the outbound message.
func (s *LogSender) Send(ctx context.Context, request *domain.SendRequest) error {
	if s.logger != nil {
		s.logger.Info("message send",
			slog.String("tenant_id", request.TenantID.String()),
			slog.String("guardian_id", request.GuardianID.String()),
			slog.String("channel", request.Channel),
			slog.String("template_ref", request.TemplateRef),
		)
	}
	return nil
}

// SendMessageHandler is the outbox handler for message.send items: decode the
// payload and hand it to the Sender.
type SendMessageHandler struct {
	sender Sender
}

// NewSendMessageHandler creates a new SendMessageHandler.
func NewSendMessageHandler(sender Sender) *SendMessageHandler {
	return &SendMessageHandler{sender: sender}
}

// Handle processes one message.send outbox item.
func (h *SendMessageHandler) Handle(ctx context.Context, item *outboxDomain.OutboxItem) error {
	request, err := domain.DecodeSendRequest(item.Payload)
	if err != nil {
		return err
	}
	return h.sender.Send(ctx, request)
}
