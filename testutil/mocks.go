// Package testutil provides in-process fakes for the chat platform and the
// telemetry feed.
package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/onnwee/live-herald/notify"
)

// Posted is one recorded channel operation.
type Posted struct {
	ID  string
	Msg notify.Message
}

// FakeChannel is an in-memory notify.Channel. Messages can be deleted to
// simulate moderators removing an announcement.
type FakeChannel struct {
	mu       sync.Mutex
	next     int
	messages map[string]notify.Message
	sends    []Posted
	edits    []Posted

	sendErr  error
	fetchErr error
	editErr  error
}

// NewFakeChannel returns an empty channel.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{messages: make(map[string]notify.Message)}
}

func (f *FakeChannel) Send(_ context.Context, msg notify.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.next++
	id := strconv.Itoa(f.next)
	f.messages[id] = msg
	f.sends = append(f.sends, Posted{ID: id, Msg: msg})
	return id, nil
}

func (f *FakeChannel) Fetch(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return f.fetchErr
	}
	if _, ok := f.messages[id]; !ok {
		return notify.ErrMessageNotFound
	}
	return nil
}

func (f *FakeChannel) Edit(_ context.Context, id string, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	if _, ok := f.messages[id]; !ok {
		return notify.ErrMessageNotFound
	}
	f.messages[id] = msg
	f.edits = append(f.edits, Posted{ID: id, Msg: msg})
	return nil
}

// Delete removes a message as if deleted on the platform.
func (f *FakeChannel) Delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, id)
}

// FailSends makes every Send return err (nil restores).
func (f *FakeChannel) FailSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// FailFetches makes every Fetch return err (nil restores).
func (f *FakeChannel) FailFetches(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// FailEdits makes every Edit return err (nil restores).
func (f *FakeChannel) FailEdits(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editErr = err
}

// Sends returns a copy of every successful Send.
func (f *FakeChannel) Sends() []Posted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Posted(nil), f.sends...)
}

// Edits returns a copy of every successful Edit.
func (f *FakeChannel) Edits() []Posted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Posted(nil), f.edits...)
}

// Message returns the current content of id.
func (f *FakeChannel) Message(id string) (notify.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	return m, ok
}

// DirectMessage is one recorded DM.
type DirectMessage struct {
	UserID string
	Msg    notify.Message
}

// FakeMessenger records direct messages.
type FakeMessenger struct {
	mu   sync.Mutex
	sent []DirectMessage
	err  error
}

func (m *FakeMessenger) SendDirect(_ context.Context, userID string, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, DirectMessage{UserID: userID, Msg: msg})
	return nil
}

// Fail makes every SendDirect return err.
func (m *FakeMessenger) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of every delivered DM.
func (m *FakeMessenger) Sent() []DirectMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DirectMessage(nil), m.sent...)
}
