// Package telegram delivers announcements through a Telegram bot. Telegram
// has no rich embeds, so messages are flattened to text with the link
// buttons carried as an inline keyboard.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/onnwee/live-herald/notify"
)

// sender is the part of *tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client posts to one chat.
type Client struct {
	bot    sender
	chatID int64
}

// New logs in with token and targets chatID.
func New(token string, chatID int64) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Client{bot: bot, chatID: chatID}, nil
}

// Ready is always true once New has succeeded; the bot API is stateless.
func (c *Client) Ready() bool { return true }

func (c *Client) Send(_ context.Context, msg notify.Message) (string, error) {
	m, err := c.bot.Send(newMessage(c.chatID, msg))
	if err != nil {
		return "", fmt.Errorf("send to chat %d: %w", c.chatID, err)
	}
	return strconv.Itoa(m.MessageID), nil
}

// Fetch cannot ask Telegram whether a message exists; a well-formed id is
// assumed present and a missing one surfaces on Edit instead.
func (c *Client) Fetch(_ context.Context, id string) error {
	if _, err := strconv.Atoi(id); err != nil {
		return notify.ErrMessageNotFound
	}
	return nil
}

func (c *Client) Edit(_ context.Context, id string, msg notify.Message) error {
	mid, err := strconv.Atoi(id)
	if err != nil {
		return notify.ErrMessageNotFound
	}
	edit := tgbotapi.NewEditMessageText(c.chatID, mid, msg.Text())
	edit.DisableWebPagePreview = true
	if kb := keyboard(msg.Buttons); kb != nil {
		edit.ReplyMarkup = kb
	}
	if _, err := c.bot.Send(edit); err != nil {
		if isMissing(err) {
			return notify.ErrMessageNotFound
		}
		return fmt.Errorf("edit message %s: %w", id, err)
	}
	return nil
}

// SendDirect messages a user by numeric id. The user must have started a
// conversation with the bot.
func (c *Client) SendDirect(_ context.Context, userID string, msg notify.Message) error {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram user id %q: %w", userID, err)
	}
	if _, err := c.bot.Send(newMessage(uid, msg)); err != nil {
		return fmt.Errorf("send dm to %s: %w", userID, err)
	}
	return nil
}

func newMessage(chatID int64, msg notify.Message) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(chatID, msg.Text())
	out.DisableWebPagePreview = true
	if kb := keyboard(msg.Buttons); kb != nil {
		out.ReplyMarkup = *kb
	}
	return out
}

func keyboard(buttons []notify.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}

func isMissing(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "message to edit not found") || strings.Contains(s, "message_id_invalid")
}
