package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/techclinic/voice-receptionist/internal/agent"
	"github.com/techclinic/voice-receptionist/internal/chat"
	"github.com/techclinic/voice-receptionist/internal/relay"
	"github.com/techclinic/voice-receptionist/internal/telephony"
)

// LiveDialer opens the conversational agent's audio channel for one call.
// Injected so tests can run the media-stream path against a fake session.
type LiveDialer func(ctx context.Context, systemInstruction string) (relay.AgentSession, error)

// smsWebhookHandler answers Twilio's inbound-SMS webhook with a TwiML
// <Message> reply produced by the text responder.
func smsWebhookHandler(responder *chat.Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_form", "could not parse form body")
			return
		}
		from := r.PostFormValue("From")
		body := r.PostFormValue("Body")
		if from == "" || body == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "From and Body are required")
			return
		}

		reply, err := responder.Respond(r.Context(), from, body)
		if err != nil {
			log.Printf("sms webhook from=%s: %v", from, err)
			reply = "Sorry, something went wrong on our side. Please try again shortly."
		}

		writeTwiML(w, fmt.Sprintf(
			`<?xml version="1.0" encoding="UTF-8"?><Response><Message>%s</Message></Response>`,
			xmlEscape(reply)))
	}
}

// voiceWebhookHandler answers an incoming call by pointing Twilio at the
// media-stream socket, forwarding the caller's number as a stream parameter.
func voiceWebhookHandler(publicHost string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_form", "could not parse form body")
			return
		}
		from := r.PostFormValue("From")

		writeTwiML(w, fmt.Sprintf(
			`<?xml version="1.0" encoding="UTF-8"?><Response><Connect><Stream url="wss://%s/media-stream"><Parameter name="callerPhone" value="%s"/></Stream></Connect></Response>`,
			publicHost, xmlEscape(from)))
	}
}

var upgrader = websocket.Upgrader{
	// Twilio's media stream client does not send a browser Origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// mediaStreamHandler owns one call: it upgrades the socket, waits for the
// start frame to learn who is calling, dials the agent and hands both legs to
// the relay.
func mediaStreamHandler(deps RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("media stream upgrade: %v", err)
			return
		}
		stream := telephony.NewStream(conn)

		start, err := awaitStart(stream)
		if err != nil {
			log.Printf("media stream handshake: %v", err)
			_ = stream.Close()
			return
		}
		callerPhone := start.CustomParameters["callerPhone"]
		log.Printf("call started streamSid=%s callSid=%s caller=%s",
			start.StreamSID, start.CallSID, callerPhone)

		instructions := agent.ReceptionistInstructions
		if callerPhone != "" {
			instructions += fmt.Sprintf("\nThe caller's phone number is %s.", callerPhone)
		}

		session, err := deps.LiveDialer(r.Context(), instructions)
		if err != nil {
			log.Printf("dial agent for streamSid=%s: %v", start.StreamSID, err)
			_ = stream.Close()
			return
		}

		gateway := agent.NewGateway(deps.Engine, callerPhone, deps.HoldTTL)
		if err := relay.New(stream, session, gateway, start.StreamSID).Run(r.Context()); err != nil {
			log.Printf("relay ended streamSid=%s: %v", start.StreamSID, err)
		}
	}
}

// awaitStart reads frames until the start event that names the stream and
// carries the caller's number.
func awaitStart(stream *telephony.Stream) (*telephony.StartFrame, error) {
	for {
		ev, err := stream.ReadEvent()
		if err != nil {
			return nil, err
		}
		switch ev.Event {
		case telephony.EventStart:
			if ev.Start == nil {
				return nil, fmt.Errorf("start event without start frame")
			}
			return ev.Start, nil
		case telephony.EventStop:
			return nil, fmt.Errorf("stream stopped before start frame")
		}
	}
}

func xmlEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '"':
			out = append(out, "&quot;"...)
		case '\'':
			out = append(out, "&apos;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
