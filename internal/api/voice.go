package api

import (
	"context"
	"net/http"

	"github.com/nutrivox/nutrivox/internal/voicecmd"
)

// Listener starts and stops local voice capture. The transcript is processed
// by the app's voice loop, not returned over HTTP.
type Listener interface {
	Start(ctx context.Context) error
	Stop()
}

// WithControls enables the narration command endpoints, routed to the local
// narrator.
func WithControls(c voicecmd.Controls) Option {
	return func(s *Server) { s.controls = c }
}

// WithListener enables the capture endpoints.
func WithListener(l Listener) Option {
	return func(s *Server) { s.listener = l }
}

// registerVoice adds the voice-loop routes for the collaborators that are
// configured.
func (s *Server) registerVoice(mux *http.ServeMux) {
	if s.controls != nil {
		mux.HandleFunc("POST /v1/narration/{command}", s.handleNarration)
	}
	if s.listener != nil {
		mux.HandleFunc("POST /v1/listen", s.handleListen)
		mux.HandleFunc("POST /v1/listen/stop", s.handleListenStop)
	}
}

func (s *Server) handleNarration(w http.ResponseWriter, r *http.Request) {
	switch voicecmd.Command(r.PathValue("command")) {
	case voicecmd.CommandPause:
		s.controls.Pause()
	case voicecmd.CommandResume:
		s.controls.Resume()
	case voicecmd.CommandSkipNext:
		s.controls.SkipNext()
	case voicecmd.CommandSkipPrevious:
		s.controls.SkipPrevious()
	case voicecmd.CommandRepeat:
		s.controls.Repeat()
	case voicecmd.CommandStop:
		s.controls.Stop()
	default:
		s.writeError(w, http.StatusNotFound, "unknown narration command")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListen starts a capture session. The session outlives the request, so
// it runs on the server's background context rather than the request's.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	if err := s.listener.Start(context.WithoutCancel(r.Context())); err != nil {
		s.log.Error("start listening", "error", err)
		s.writeError(w, http.StatusConflict, "could not start listening")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListenStop(w http.ResponseWriter, _ *http.Request) {
	s.listener.Stop()
	w.WriteHeader(http.StatusNoContent)
}
