// Package telephony speaks the Twilio media-stream WebSocket protocol: JSON
// events carrying base64 mu-law audio at 8 kHz.
package telephony

import (
	"encoding/base64"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventClear     = "clear"
)

// Event is one inbound frame from the telephony leg.
type Event struct {
	Event string      `json:"event"`
	Start *StartFrame `json:"start,omitempty"`
	Media *MediaFrame `json:"media,omitempty"`
}

type StartFrame struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type MediaFrame struct {
	Payload string `json:"payload"` // base64 mu-law
}

type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// Stream wraps the call's WebSocket. Reads happen from one goroutine; writes
// are serialized with a mutex because the relay writes from its own tasks.
type Stream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewStream(conn *websocket.Conn) *Stream {
	return &Stream{conn: conn}
}

// ReadEvent blocks until the next inbound event arrives.
func (s *Stream) ReadEvent() (*Event, error) {
	var ev Event
	if err := s.conn.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// WriteMedia sends mu-law audio back to the caller.
func (s *Stream) WriteMedia(streamSID string, mulaw []byte) error {
	msg := outboundMedia{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// WriteClear tells the telephony leg to drop its queued playback buffer
// (barge-in).
func (s *Stream) WriteClear(streamSID string) error {
	msg := outboundClear{Event: EventClear, StreamSID: streamSID}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *Stream) Close() error {
	return s.conn.Close()
}
