package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nutrivox/nutrivox/internal/pipeline"
)

type controlsRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (c *controlsRecorder) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *controlsRecorder) Pause()        { c.record("pause") }
func (c *controlsRecorder) Resume()       { c.record("resume") }
func (c *controlsRecorder) SkipNext()     { c.record("skip-next") }
func (c *controlsRecorder) SkipPrevious() { c.record("skip-previous") }
func (c *controlsRecorder) Repeat()       { c.record("repeat") }
func (c *controlsRecorder) Stop()         { c.record("stop") }

type stubListener struct {
	mu       sync.Mutex
	started  int
	stopped  int
	startErr error
}

func (l *stubListener) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return l.startErr
	}
	l.started++
	return nil
}

func (l *stubListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped++
}

func TestNarrationEndpoints(t *testing.T) {
	t.Parallel()

	controls := &controlsRecorder{}
	s := NewServer(pipeline.New(), WithControls(controls))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for _, cmd := range []string{"pause", "resume", "skip-next", "skip-previous", "repeat", "stop"} {
		resp, err := http.Post(srv.URL+"/v1/narration/"+cmd, "", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", cmd, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("%s status = %d", cmd, resp.StatusCode)
		}
	}
	if len(controls.calls) != 6 || controls.calls[0] != "pause" || controls.calls[5] != "stop" {
		t.Errorf("calls = %v", controls.calls)
	}

	resp, err := http.Post(srv.URL+"/v1/narration/louder", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown command status = %d", resp.StatusCode)
	}
}

func TestListenEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("start and stop", func(t *testing.T) {
		t.Parallel()
		listener := &stubListener{}
		s := NewServer(pipeline.New(), WithListener(listener))
		srv := httptest.NewServer(s.Handler())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/v1/listen", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("listen status = %d", resp.StatusCode)
		}

		resp, err = http.Post(srv.URL+"/v1/listen/stop", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("stop status = %d", resp.StatusCode)
		}

		if listener.started != 1 || listener.stopped != 1 {
			t.Errorf("started = %d, stopped = %d", listener.started, listener.stopped)
		}
	})

	t.Run("start failure", func(t *testing.T) {
		t.Parallel()
		listener := &stubListener{startErr: errors.New("recognizer destroyed")}
		s := NewServer(pipeline.New(), WithListener(listener))
		srv := httptest.NewServer(s.Handler())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/v1/listen", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("unconfigured routes absent", func(t *testing.T) {
		t.Parallel()
		s := NewServer(pipeline.New())
		srv := httptest.NewServer(s.Handler())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/v1/listen", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}
