// Package relay bridges a telephony audio stream and the conversational
// agent's live channel for the duration of one call.
package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/techclinic/voice-receptionist/internal/agent"
	"github.com/techclinic/voice-receptionist/internal/telephony"
)

const (
	// queueCapacity bounds inbound caller audio so a stalled agent leg can
	// never grow memory without bound.
	queueCapacity = 64

	// frameTarget is how many bytes of 16 kHz PCM are batched per agent
	// frame (~100ms), matching the agent's expected cadence.
	frameTarget = 3200

	// flushTimeout flushes a partial frame after idle so silence never
	// delays delivery indefinitely.
	flushTimeout = 2 * time.Second
)

// AgentSession is the conversational audio channel the relay talks to.
type AgentSession interface {
	SendAudio(pcm []byte) error
	SendToolResponses(results []agent.ToolResponse) error
	Receive() (*agent.ServerEvent, error)
	Close() error
}

// ToolDispatcher runs one tool call on behalf of the agent.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) map[string]any
}

// TelephonyStream is the caller's audio leg.
type TelephonyStream interface {
	ReadEvent() (*telephony.Event, error)
	WriteMedia(streamSID string, mulaw []byte) error
	WriteClear(streamSID string) error
	Close() error
}

// Relay runs two independent directions: caller audio is queued and drained
// toward the agent without ever blocking the telephony reader, and agent
// events are consumed and written back to the caller. The only shared mutable
// state is the active stream identifier; the greeting gate holds caller audio
// until the agent's opening turn has finished.
type Relay struct {
	stream  TelephonyStream
	session AgentSession
	tools   ToolDispatcher

	queue     chan []byte // raw mu-law payloads from the caller
	queueOnce sync.Once

	mu        sync.Mutex
	streamSID string

	greetingDone atomic.Bool
}

func New(stream TelephonyStream, session AgentSession, tools ToolDispatcher, streamSID string) *Relay {
	return &Relay{
		stream:    stream,
		session:   session,
		tools:     tools,
		queue:     make(chan []byte, queueCapacity),
		streamSID: streamSID,
	}
}

// Run relays until the caller hangs up, the transport fails, or ctx is
// cancelled. Every exit path closes the queue (the poison value for the drain
// task), cancels both directional tasks, awaits them and closes the
// telephony channel.
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Blocking reads on either leg don't watch ctx; closing the transports
	// is what unblocks them on cancellation.
	go func() {
		<-ctx.Done()
		_ = r.session.Close()
		_ = r.stream.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		r.pumpCallerAudio(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		r.receiveAgent(ctx)
	}()

	err := r.readTelephony(ctx)

	r.closeQueue()
	cancel()
	wg.Wait()
	return err
}

// readTelephony is the inbound loop: it only decodes and enqueues so the
// telephony reader is never blocked by agent-side work.
func (r *Relay) readTelephony(ctx context.Context) error {
	for {
		ev, err := r.stream.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telephony read: %w", err)
		}

		switch ev.Event {
		case telephony.EventStart:
			if ev.Start != nil {
				r.setStreamSID(ev.Start.StreamSID)
			}
		case telephony.EventMedia:
			if ev.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				log.Printf("skipping undecodable media frame: %v", err)
				continue
			}
			select {
			case r.queue <- payload:
			case <-ctx.Done():
				return nil
			}
		case telephony.EventStop:
			log.Printf("call ended streamSid=%s", r.currentStreamSID())
			return nil
		case telephony.EventConnected, telephony.EventMark:
			// No action needed.
		}
	}
}

// pumpCallerAudio drains the queue, batches audio up to frameTarget and
// forwards it to the agent, flushing partial frames after flushTimeout of
// silence. Caller audio received before the agent finishes its greeting is
// discarded.
func (r *Relay) pumpCallerAudio(ctx context.Context) {
	buf := make([]byte, 0, frameTarget*2)

	flush := func() bool {
		if len(buf) == 0 {
			return true
		}
		if err := r.session.SendAudio(buf); err != nil {
			if ctx.Err() == nil {
				log.Printf("agent audio send failed: %v", err)
			}
			return false
		}
		buf = buf[:0]
		return true
	}

	for {
		select {
		case payload, ok := <-r.queue:
			if !ok {
				return
			}
			if !r.greetingDone.Load() {
				continue
			}
			pcm, err := callerToAgentAudio(payload)
			if err != nil {
				log.Printf("skipping caller frame: %v", err)
				continue
			}
			buf = append(buf, pcm...)
			if len(buf) >= frameTarget {
				if !flush() {
					return
				}
			}
		case <-time.After(flushTimeout):
			if !flush() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// receiveAgent consumes the agent's server-push stream. The channel frames
// one iteration per agent turn, so the loop deliberately re-enters after
// every turn completion for the whole call.
func (r *Relay) receiveAgent(ctx context.Context) {
	for {
		ev, err := r.session.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, agent.ErrSessionClosed) {
				return
			}
			log.Printf("agent receive failed: %v", err)
			return
		}

		if len(ev.ToolCalls) > 0 {
			results := make([]agent.ToolResponse, 0, len(ev.ToolCalls))
			for _, call := range ev.ToolCalls {
				results = append(results, agent.ToolResponse{
					ID:       call.ID,
					Name:     call.Name,
					Response: r.tools.Dispatch(ctx, call.Name, call.Args),
				})
			}
			if err := r.session.SendToolResponses(results); err != nil {
				if ctx.Err() == nil {
					log.Printf("tool response send failed: %v", err)
				}
				return
			}
			continue
		}

		if ev.Interrupted {
			// Barge-in: the caller spoke over the agent, drop queued playback.
			if sid := r.currentStreamSID(); sid != "" {
				if err := r.stream.WriteClear(sid); err != nil && ctx.Err() == nil {
					log.Printf("clear playback failed: %v", err)
					return
				}
			}
		}

		if len(ev.Audio) > 0 {
			mulaw, err := agentToCallerAudio(ev.Audio)
			if err != nil {
				log.Printf("skipping agent frame: %v", err)
			} else if sid := r.currentStreamSID(); sid != "" {
				if err := r.stream.WriteMedia(sid, mulaw); err != nil {
					if ctx.Err() == nil {
						log.Printf("caller audio write failed: %v", err)
					}
					return
				}
			}
		}

		if ev.TurnComplete && !r.greetingDone.Load() {
			// The opening turn has finished: discard any buffered
			// pre-greeting caller audio, then open the gate.
			r.drainQueuedAudio()
			r.greetingDone.Store(true)
		}
	}
}

func (r *Relay) drainQueuedAudio() {
	for {
		select {
		case _, ok := <-r.queue:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func callerToAgentAudio(mulaw []byte) ([]byte, error) {
	pcm := MuLawToPCM16(mulaw)
	return ResamplePCM16(pcm, TelephonyRate, AgentInRate)
}

func agentToCallerAudio(pcm []byte) ([]byte, error) {
	down, err := ResamplePCM16(pcm, AgentOutRate, TelephonyRate)
	if err != nil {
		return nil, err
	}
	return PCM16ToMuLaw(down)
}

func (r *Relay) setStreamSID(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamSID = sid
}

func (r *Relay) currentStreamSID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamSID
}

func (r *Relay) closeQueue() {
	r.queueOnce.Do(func() { close(r.queue) })
}
