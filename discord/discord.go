// Package discord delivers announcements through a Discord bot.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/live-herald/notify"
)

// Client posts to one announcement channel and sends owner DMs.
type Client struct {
	session   *discordgo.Session
	channelID string
	ready     atomic.Bool
}

// New creates a client for token. The gateway is not opened until Open.
func New(token, channelID string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages
	c := &Client{session: s, channelID: channelID}
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.ready.Store(true)
		slog.Info("discord session ready", slog.String("user", r.User.Username), slog.String("component", "discord"))
	})
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		c.ready.Store(false)
		slog.Warn("discord gateway disconnected", slog.String("component", "discord"))
	})
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		c.ready.Store(true)
	})
	return c, nil
}

// Open logs in to the gateway.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (c *Client) Close() error {
	c.ready.Store(false)
	return c.session.Close()
}

// Ready reports whether the gateway session is established.
func (c *Client) Ready() bool { return c.ready.Load() }

// Send posts msg to the announcement channel and returns the message id.
func (c *Client) Send(ctx context.Context, msg notify.Message) (string, error) {
	m, err := c.session.ChannelMessageSendComplex(c.channelID, toSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send to channel %s: %w", c.channelID, err)
	}
	return m.ID, nil
}

// Fetch checks that message id still exists in the announcement channel.
func (c *Client) Fetch(ctx context.Context, id string) error {
	if _, err := c.session.ChannelMessage(c.channelID, id, discordgo.WithContext(ctx)); err != nil {
		if isUnknownMessage(err) {
			return notify.ErrMessageNotFound
		}
		return fmt.Errorf("fetch message %s: %w", id, err)
	}
	return nil
}

// Edit replaces the content of message id.
func (c *Client) Edit(ctx context.Context, id string, msg notify.Message) error {
	if _, err := c.session.ChannelMessageEditComplex(toEdit(c.channelID, id, msg), discordgo.WithContext(ctx)); err != nil {
		if isUnknownMessage(err) {
			return notify.ErrMessageNotFound
		}
		return fmt.Errorf("edit message %s: %w", id, err)
	}
	return nil
}

// SendDirect opens a DM channel with userID and posts msg there.
func (c *Client) SendDirect(ctx context.Context, userID string, msg notify.Message) error {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", userID, err)
	}
	if _, err := c.session.ChannelMessageSendComplex(ch.ID, toSend(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm to %s: %w", userID, err)
	}
	return nil
}

func isUnknownMessage(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil && rest.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

func toSend(msg notify.Message) *discordgo.MessageSend {
	out := &discordgo.MessageSend{Content: msg.Content}
	if e := toEmbed(msg.Embed); e != nil {
		out.Embeds = []*discordgo.MessageEmbed{e}
	}
	out.Components = toComponents(msg.Buttons)
	return out
}

func toEdit(channelID, id string, msg notify.Message) *discordgo.MessageEdit {
	content := msg.Content
	embeds := []*discordgo.MessageEmbed{}
	if e := toEmbed(msg.Embed); e != nil {
		embeds = append(embeds, e)
	}
	components := toComponents(msg.Buttons)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	return &discordgo.MessageEdit{
		ID:         id,
		Channel:    channelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
}

func toEmbed(e *notify.Embed) *discordgo.MessageEmbed {
	if e == nil {
		return nil
	}
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.AuthorName != "" {
		out.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName, IconURL: e.AuthorIcon}
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

// toComponents puts every link button into a single action row.
func toComponents(buttons []notify.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		row.Components = append(row.Components, discordgo.Button{
			Label: b.Label,
			Style: discordgo.LinkButton,
			URL:   b.URL,
		})
	}
	return []discordgo.MessageComponent{row}
}
