package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/repo"
)

// maxMessageRunes is the Telegram limit for a text message.
const maxMessageRunes = 4096

// Sender delivers a text message to a Telegram user's private chat.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// NotificationService sends bot messages to known accounts.
type NotificationService struct {
	DB     *gorm.DB
	Sender Sender // nil means Telegram is disabled
}

// Notify sends text to the account's private chat.
func (s *NotificationService) Notify(ctx context.Context, accountID int64, text string) error {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "Notify",
		trace.WithAttributes(attribute.Int64("account.id", accountID)),
	)
	defer span.End()

	if accountID <= 0 {
		return ErrInvalidAccountID
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		text = string([]rune(text)[:maxMessageRunes])
	}
	if _, err := repo.GetAccount(ctx, s.DB, accountID); err != nil {
		return mapAccountErr(err)
	}
	if s.Sender == nil {
		return ErrTelegramUnavailable
	}
	if err := s.Sender.Send(ctx, accountID, text); err != nil {
		return fmt.Errorf("%w: %v", ErrTelegramUnavailable, err)
	}
	return nil
}
