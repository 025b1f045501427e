// Package telegram wraps the Telegram Bot API client used to verify quest
// eligibility (channel membership, profile bio) and to send notifications.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/tbourn/rewards-backend/internal/config"
)

// ErrDisabled is returned by New when no bot token is configured.
var ErrDisabled = errors.New("telegram: client disabled")

// ErrNoChannel is returned by IsSubscribed when no channel is configured.
var ErrNoChannel = errors.New("telegram: subscription channel not configured")

// Client performs the Bot API calls needed by the rewards backend.
type Client struct {
	bot     *telego.Bot
	channel string
}

// New builds a Client from cfg. It returns ErrDisabled when cfg.Token is
// empty so callers can run without Telegram.
func New(cfg config.TelegramConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrDisabled
	}
	bot, err := telego.NewBot(cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return &Client{bot: bot, channel: cfg.Channel}, nil
}

// IsSubscribed reports whether userID is a member of the configured channel.
func (c *Client) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	if c.channel == "" {
		return false, ErrNoChannel
	}
	m, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: chatID(c.channel),
		UserID: userID,
	})
	if err != nil {
		return false, err
	}
	restrictedMember := false
	if r, ok := m.(*telego.ChatMemberRestricted); ok {
		restrictedMember = r.IsMember
	}
	return subscribed(m.MemberStatus(), restrictedMember), nil
}

// Bio returns the bio of the user's private chat, or "" when unset.
func (c *Client) Bio(ctx context.Context, userID int64) (string, error) {
	chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(userID)})
	if err != nil {
		return "", err
	}
	return chat.Bio, nil
}

// Send delivers text to the user's private chat with the bot.
func (c *Client) Send(ctx context.Context, userID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(userID), text))
	return err
}

// subscribed maps a chat member status to channel membership. Restricted
// users count only while they are still members.
func subscribed(status string, restrictedMember bool) bool {
	switch status {
	case telego.MemberStatusCreator, telego.MemberStatusAdministrator, telego.MemberStatusMember:
		return true
	case telego.MemberStatusRestricted:
		return restrictedMember
	default:
		return false
	}
}

// chatID accepts "@channel" usernames and numeric ids such as "-100123".
func chatID(ch string) telego.ChatID {
	if id, err := strconv.ParseInt(ch, 10, 64); err == nil {
		return tu.ID(id)
	}
	return tu.Username(ch)
}
