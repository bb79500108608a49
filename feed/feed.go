// Package feed opens the per-account telemetry websocket.
//
// The endpoint is parameterized by the account's unique id and the API
// key. A Conn yields raw text frames until the socket closes for any
// reason; the caller decides what a close means.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is an open telemetry socket.
type Conn interface {
	// ReadFrame blocks for the next frame. Any error means the socket is closed.
	ReadFrame() ([]byte, error)
	Close() error
}

// Dialer opens a telemetry socket for one account.
type Dialer interface {
	Dial(ctx context.Context, account string) (Conn, error)
}

// WSDialer dials the websocket endpoint.
type WSDialer struct {
	URL    string
	APIKey string
	// IdleTimeout closes a socket that delivers nothing, not even a ping,
	// for this long. Zero disables it.
	IdleTimeout time.Duration
	// HandshakeTimeout bounds the opening handshake. Zero uses 15s.
	HandshakeTimeout time.Duration
}

// Endpoint builds the socket URL for account.
func (d *WSDialer) Endpoint(account string) (string, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("uniqueId", account)
	if d.APIKey != "" {
		q.Set("apiKey", d.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the socket for account.
func (d *WSDialer) Dial(ctx context.Context, account string) (Conn, error) {
	endpoint, err := d.Endpoint(account)
	if err != nil {
		return nil, err
	}
	hs := d.HandshakeTimeout
	if hs <= 0 {
		hs = 15 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: hs,
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial feed for %s: %w (status %d)", account, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial feed for %s: %w", account, err)
	}
	c := &wsConn{ws: ws, idle: d.IdleTimeout}
	if c.idle > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(c.idle))
		ws.SetPingHandler(func(data string) error {
			_ = ws.SetReadDeadline(time.Now().Add(c.idle))
			return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
		})
	}
	return c, nil
}

type wsConn struct {
	ws   *websocket.Conn
	idle time.Duration
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if c.idle > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.idle))
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

// IsNormalClose reports whether err is an orderly close from the server.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// CloseCode extracts the websocket close code from err, or -1.
func CloseCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}
