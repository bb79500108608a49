package stream

import (
	"encoding/json"
)

// TypeRoomInfo tags the only message kind the state machine consumes.
const TypeRoomInfo = "roomInfo"

// Frame is one inbound websocket payload.
type Frame struct {
	Messages []Envelope `json:"messages"`
}

// Envelope is one message in a frame. Data is decoded lazily because most
// message types are ignored.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RoomInfo is the room state carried by a roomInfo message.
type RoomInfo struct {
	IsLive    bool   `json:"isLive"`
	StartTime int64  `json:"startTime,omitempty"` // epoch seconds
	Title     string `json:"title,omitempty"`
	CoverURL  string `json:"coverUrl,omitempty"`
}

// User identifies the broadcaster in a roomInfo message.
type User struct {
	UniqueID  string `json:"uniqueId"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Update is a decoded roomInfo message with both parts present.
type Update struct {
	Room RoomInfo
	User User
}

type roomInfoData struct {
	RoomInfo *RoomInfo `json:"roomInfo"`
	User     *User     `json:"user"`
}

// Decode extracts the roomInfo updates from raw, in order. Malformed
// frames, malformed entries and entries missing room or user are dropped.
func Decode(raw []byte) []Update {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	var out []Update
	for _, env := range f.Messages {
		if env.Type != TypeRoomInfo || len(env.Data) == 0 {
			continue
		}
		var d roomInfoData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			continue
		}
		if d.RoomInfo == nil || d.User == nil {
			continue
		}
		out = append(out, Update{Room: *d.RoomInfo, User: *d.User})
	}
	return out
}
