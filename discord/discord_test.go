package discord

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/live-herald/notify"
)

func TestToSendMapsEmbedAndButtons(t *testing.T) {
	ts := time.Date(2026, 10, 16, 20, 0, 0, 0, time.FixedZone("x", 3600))
	msg := notify.Message{
		Content: "hi",
		Embed: &notify.Embed{
			Title:        "T",
			URL:          "https://example.com",
			Color:        0xFE2C55,
			AuthorName:   "alice",
			AuthorIcon:   "https://cdn.example/a.png",
			ThumbnailURL: "https://cdn.example/a.png",
			Fields:       []notify.Field{{Name: "Duration", Value: "59s", Inline: true}},
			Timestamp:    ts,
		},
		Buttons: []notify.Button{{Label: "Watch", URL: "https://example.com/live"}},
	}
	out := toSend(msg)
	if out.Content != "hi" || len(out.Embeds) != 1 {
		t.Fatalf("unexpected send: %+v", out)
	}
	e := out.Embeds[0]
	if e.Author == nil || e.Author.IconURL != "https://cdn.example/a.png" {
		t.Fatalf("author = %+v", e.Author)
	}
	if e.Thumbnail == nil || e.Image != nil || e.Footer != nil {
		t.Fatalf("optional parts mapped wrong: %+v", e)
	}
	if e.Timestamp != "2026-10-16T19:00:00Z" {
		t.Fatalf("timestamp = %q", e.Timestamp)
	}
	if len(e.Fields) != 1 || !e.Fields[0].Inline {
		t.Fatalf("fields = %+v", e.Fields)
	}
	row, ok := out.Components[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) != 1 {
		t.Fatalf("components = %+v", out.Components)
	}
	btn := row.Components[0].(discordgo.Button)
	if btn.Style != discordgo.LinkButton || btn.URL != "https://example.com/live" {
		t.Fatalf("button = %+v", btn)
	}
}

func TestToEditClearsMissingParts(t *testing.T) {
	ed := toEdit("chan", "42", notify.Message{Content: "done"})
	if ed.ID != "42" || ed.Channel != "chan" || *ed.Content != "done" {
		t.Fatalf("edit = %+v", ed)
	}
	if ed.Embeds == nil || len(*ed.Embeds) != 0 {
		t.Fatal("embeds must be sent empty to clear the old card")
	}
	if ed.Components == nil || len(*ed.Components) != 0 {
		t.Fatal("components must be sent empty to clear old buttons")
	}
}

func TestIsUnknownMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"code", &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage}}, true},
		{"wrapped 404", fmt.Errorf("x: %w", &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}), true},
		{"forbidden", &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}, false},
		{"plain", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUnknownMessage(tt.err); got != tt.want {
				t.Fatalf("isUnknownMessage = %v, want %v", got, tt.want)
			}
		})
	}
}
