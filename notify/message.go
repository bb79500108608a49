package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/live-herald/store"
)

// Message is a platform-neutral announcement. Adapters map it onto their
// own rich-content and component types.
type Message struct {
	Content string
	Embed   *Embed
	Buttons []Button
}

// Embed is the rich card attached to a message.
type Embed struct {
	Title        string
	Description  string
	URL          string
	Color        int
	AuthorName   string
	AuthorIcon   string
	ThumbnailURL string
	ImageURL     string
	Fields       []Field
	Footer       string
	Timestamp    time.Time
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Button is a link button.
type Button struct {
	Label string
	URL   string
}

// Text flattens a message for platforms without rich content.
func (m Message) Text() string {
	var b strings.Builder
	if m.Content != "" {
		b.WriteString(m.Content)
	}
	if e := m.Embed; e != nil {
		for _, s := range []string{e.Title, e.Description} {
			if s == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(s)
		}
		for _, f := range e.Fields {
			fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
		}
	}
	for _, btn := range m.Buttons {
		fmt.Fprintf(&b, "\n%s: %s", btn.Label, btn.URL)
	}
	return b.String()
}

const (
	colorLive    = 0xFE2C55
	colorEnded   = 0x5865F2
	colorWarning = 0xFAA61A
	colorBlocked = 0xED4245
)

// Live describes a session that just started.
type Live struct {
	Account   string
	Title     string
	CoverURL  string
	User      store.User
	StartedAt time.Time
}

// Ended describes a session that just finished.
type Ended struct {
	Account   string
	Title     string
	User      store.User
	StartedAt time.Time
	EndedAt   time.Time
	Forced    bool
}

// Duration is the session length truncated to the second. A zero start
// time yields zero.
func (e Ended) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.EndedAt.Before(e.StartedAt) {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt).Truncate(time.Second)
}

// LiveURL is the public watch page for account.
func LiveURL(account string) string {
	return "https://www.tiktok.com/@" + account + "/live"
}

// ProfileURL is the public profile page for account.
func ProfileURL(account string) string {
	return "https://www.tiktok.com/@" + account
}

// LiveMessage renders the announcement for a new session.
func LiveMessage(l Live) Message {
	name := displayName(l.Account, l.User)
	title := l.Title
	if title == "" {
		title = name + " is live"
	}
	return Message{
		Content: fmt.Sprintf("🔴 **%s** is now live!", name),
		Embed: &Embed{
			Title:        title,
			URL:          LiveURL(l.Account),
			Color:        colorLive,
			AuthorName:   name,
			AuthorIcon:   l.User.AvatarURL,
			ThumbnailURL: l.User.AvatarURL,
			ImageURL:     l.CoverURL,
			Fields: []Field{
				{Name: "Started", Value: fmt.Sprintf("<t:%d:R>", l.StartedAt.Unix()), Inline: true},
			},
			Timestamp: l.StartedAt,
		},
		Buttons: []Button{{Label: "Watch stream", URL: LiveURL(l.Account)}},
	}
}

// EndedMessage renders the terminal announcement for a session.
func EndedMessage(e Ended) Message {
	name := displayName(e.Account, e.User)
	desc := "The stream has ended."
	if e.Forced {
		desc = "The stream is presumed ended after the connection was lost."
	}
	title := e.Title
	if title == "" {
		title = name + " was live"
	}
	return Message{
		Content: fmt.Sprintf("⚫ **%s** has ended the stream.", name),
		Embed: &Embed{
			Title:        title,
			Description:  desc,
			URL:          ProfileURL(e.Account),
			Color:        colorEnded,
			AuthorName:   name,
			AuthorIcon:   e.User.AvatarURL,
			ThumbnailURL: e.User.AvatarURL,
			Fields: []Field{
				{Name: "Duration", Value: FormatDuration(e.Duration()), Inline: true},
			},
			Timestamp: e.EndedAt,
		},
		Buttons: []Button{{Label: "Profile", URL: ProfileURL(e.Account)}},
	}
}

// QuotaWarningMessage tells the owner the daily quota is nearly spent.
func QuotaWarningMessage(used, limit int) Message {
	return Message{Embed: &Embed{
		Title:       "Connection quota warning",
		Description: fmt.Sprintf("%d of %d daily connection attempts used.", used, limit),
		Color:       colorWarning,
	}}
}

// QuotaExhaustedMessage tells the owner further connections are refused today.
func QuotaExhaustedMessage(limit int) Message {
	return Message{Embed: &Embed{
		Title:       "Connection quota exhausted",
		Description: fmt.Sprintf("All %d daily connection attempts used. New connections are paused until the next day.", limit),
		Color:       colorBlocked,
	}}
}

// ConnectionLostMessage tells the owner an account was forced offline.
func ConnectionLostMessage(account string, attempts int) Message {
	return Message{Embed: &Embed{
		Title:       "Connection lost",
		Description: fmt.Sprintf("Lost the feed for **%s** after %d reconnect attempts; the stream was marked as ended.", account, attempts),
		Color:       colorWarning,
	}}
}

// FormatDuration renders d as "1h 02m 03s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func displayName(account string, u store.User) string {
	if u.UniqueID != "" {
		return u.UniqueID
	}
	return account
}
