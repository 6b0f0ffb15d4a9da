// Package mock provides test doubles for the stt.Provider, stt.SessionHandle,
// and stt.Transcriber interfaces.
//
// The Session mock exposes its partial and final channels directly so tests
// can drive the capture controller's event loop deterministically:
//
//	sess := mock.NewSession()
//	prov := &mock.Provider{Session: sess}
//	// ... start capture ...
//	sess.EmitPartial("ingredients wat")
//	sess.EmitFinal("ingredients water sugar")
package mock

import (
	"context"
	"sync"

	"github.com/nutrivox/nutrivox/pkg/provider/stt"
	"github.com/nutrivox/nutrivox/pkg/types"
)

// StartStreamCall records a single invocation of StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil and StartStreamErr is nil,
	// StartStream returns a fresh NewSession().
	Session *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every invocation of StartStream in order.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns the configured session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// StartStreamCallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) StartStreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Session is a mock implementation of stt.SessionHandle. Tests feed it
// transcripts via EmitPartial and EmitFinal and inspect the audio it received
// via AudioChunks.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned from every SendAudio call.
	SendAudioErr error

	// AudioChunks records every chunk passed to SendAudio in order.
	AudioChunks [][]byte

	// Closed reports whether Close has been called.
	Closed bool

	partials chan types.Transcript
	finals   chan types.Transcript
	once     sync.Once
}

// NewSession creates a Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
	}
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.AudioChunks = append(s.AudioChunks, c)
	return nil
}

// AudioChunksSnapshot returns a copy of the chunks received so far. Thread-safe.
func (s *Session) AudioChunksSnapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.AudioChunks...)
}

// Partials returns the partial transcript channel.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Close marks the session closed and closes both transcript channels.
// Safe to call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.Closed = true
		s.mu.Unlock()
		close(s.partials)
		close(s.finals)
	})
	return nil
}

// EmitPartial sends an interim transcript with the given text.
func (s *Session) EmitPartial(text string) {
	s.partials <- types.Transcript{Text: text, IsFinal: false}
}

// EmitFinal sends a final transcript with the given text.
func (s *Session) EmitFinal(text string) {
	s.finals <- types.Transcript{Text: text, IsFinal: true}
}

// IsClosed reports whether Close has been called. Thread-safe.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// PCM is the audio passed to Transcribe.
	PCM []byte
}

// Transcriber is a mock implementation of stt.Transcriber for one-shot
// (fallback mode) capture tests.
type Transcriber struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe.
	Transcript types.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured transcript.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (types.Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := make([]byte, len(pcm))
	copy(c, pcm)
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Ctx: ctx, PCM: c})
	if t.TranscribeErr != nil {
		return types.Transcript{}, t.TranscribeErr
	}
	return t.Transcript, nil
}

// Ensure the mocks implement their interfaces at compile time.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
	_ stt.Transcriber   = (*Transcriber)(nil)
)
