package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nutrivox/nutrivox/internal/ask"
	"github.com/nutrivox/nutrivox/internal/pipeline"
	"github.com/nutrivox/nutrivox/pkg/history"
	historymock "github.com/nutrivox/nutrivox/pkg/history/mock"
	"github.com/nutrivox/nutrivox/pkg/provider/llm"
	llmmock "github.com/nutrivox/nutrivox/pkg/provider/llm/mock"
)

var errTest = errors.New("provider unavailable")

type serverFixture struct {
	srv   *httptest.Server
	store *historymock.Store
	llm   *llmmock.Provider
}

func newFixture(t *testing.T) *serverFixture {
	t.Helper()
	store := historymock.NewStore()
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Yes, it contains milk powder."},
	}
	s := NewServer(pipeline.New(),
		WithHistory(store),
		WithAnswerer(ask.New(provider)),
	)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &serverFixture{srv: srv, store: store, llm: provider}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestScanEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("label text with allergen match", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)

		resp := postJSON(t, fx.srv.URL+"/v1/scan", map[string]any{
			"text_blocks": []string{
				"Choco Crunch",
				"Ingredients: Oats, Milk Powder, Sugar, Cocoa.\nBest before 12/2026.",
			},
			"front_text": "Choco Crunch",
			"back_text":  "Ingredients: Oats, Milk Powder, Sugar, Cocoa.",
			"profile":    map[string]any{"allergens": []string{"Milk", "dragon fruit"}},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}

		var got scanResponse
		decodeJSON(t, resp, &got)
		if got.ScanID == "" {
			t.Error("scan_id is empty")
		}
		if got.Outcome != "ok" {
			t.Errorf("outcome = %q", got.Outcome)
		}
		if got.Record.Name != "Choco Crunch" {
			t.Errorf("record name = %q", got.Record.Name)
		}
		if len(got.Sections) == 0 || got.Sections[0].Category != "allergen-alert" {
			t.Fatalf("sections = %+v, want allergen-alert first", got.Sections)
		}

		stored, err := fx.store.GetScan(context.Background(), got.ScanID)
		if err != nil {
			t.Fatalf("scan was not persisted: %v", err)
		}
		if stored.ProductName != "Choco Crunch" || stored.Outcome != "ok" {
			t.Errorf("stored = %+v", stored)
		}
		var snapshot recordJSON
		if err := json.Unmarshal(stored.Record, &snapshot); err != nil {
			t.Fatalf("stored record snapshot unreadable: %v", err)
		}
		if len(snapshot.Ingredients) == 0 {
			t.Error("snapshot lost the ingredient list")
		}
	})

	t.Run("preferences gate sections", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)

		resp := postJSON(t, fx.srv.URL+"/v1/scan", map[string]any{
			"text_blocks": []string{"Ingredients: Rice, Salt."},
			"profile":     map[string]any{"allergens": []string{"Milk"}},
			"preferences": map[string]any{"ingredients": true},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var got scanResponse
		decodeJSON(t, resp, &got)
		for _, sec := range got.Sections {
			if sec.Category != "ingredients" {
				t.Errorf("unexpected section %q with everything else gated off", sec.Category)
			}
		}
	})

	t.Run("no evidence", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)

		resp := postJSON(t, fx.srv.URL+"/v1/scan", map[string]any{
			"profile": map[string]any{"allergens": []string{"Milk"}},
		})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
		if fx.store.Len() != 0 {
			t.Error("failed scan must not be persisted")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)

		resp, err := http.Post(fx.srv.URL+"/v1/scan", "application/json",
			bytes.NewReader([]byte(`{"text_blocks": [`)))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)

		resp := postJSON(t, fx.srv.URL+"/v1/scan", map[string]any{
			"text_blocks": []string{"Ingredients: Rice."},
			"profille":    map[string]any{},
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestAskEndpoint(t *testing.T) {
	t.Parallel()

	seedScan := func(t *testing.T, fx *serverFixture) string {
		t.Helper()
		snapshot, err := json.Marshal(recordJSON{
			ID:                "scan-1",
			Name:              "Choco Crunch",
			Ingredients:       []string{"Oats", "Milk Powder", "Sugar"},
			DetectedAllergens: []string{"Milk"},
		})
		if err != nil {
			t.Fatalf("marshal snapshot: %v", err)
		}
		err = fx.store.SaveScan(context.Background(), history.Scan{
			ID:          "scan-1",
			ProductName: "Choco Crunch",
			Outcome:     "ok",
			Record:      snapshot,
		})
		if err != nil {
			t.Fatalf("seed scan: %v", err)
		}
		return "scan-1"
	}

	t.Run("answers about a stored scan", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)
		id := seedScan(t, fx)

		resp := postJSON(t, fx.srv.URL+"/v1/ask", map[string]any{
			"scan_id":  id,
			"question": "does this have milk?",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var got askResponse
		decodeJSON(t, resp, &got)
		if got.Answer != "Yes, it contains milk powder." {
			t.Errorf("answer = %q", got.Answer)
		}

		answers, err := fx.store.ListAnswers(context.Background(), id)
		if err != nil {
			t.Fatalf("ListAnswers: %v", err)
		}
		if len(answers) != 1 || answers[0].Question != "does this have milk?" {
			t.Errorf("persisted answers = %+v", answers)
		}
	})

	t.Run("answer log endpoint", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)
		id := seedScan(t, fx)

		for _, q := range []string{"does this have milk?", "is it vegan?"} {
			resp := postJSON(t, fx.srv.URL+"/v1/ask", map[string]any{
				"scan_id": id, "question": q,
			})
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("ask %q status = %d", q, resp.StatusCode)
			}
		}

		resp, err := http.Get(fx.srv.URL + "/v1/scans/" + id + "/answers")
		if err != nil {
			t.Fatalf("GET answers: %v", err)
		}
		var got struct {
			Answers []answerJSON `json:"answers"`
		}
		decodeJSON(t, resp, &got)
		if len(got.Answers) != 2 {
			t.Fatalf("answers = %d, want 2", len(got.Answers))
		}

		resp, err = http.Get(fx.srv.URL + "/v1/scans/missing/answers")
		if err != nil {
			t.Fatalf("GET answers: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("unknown scan status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("unknown scan id", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)

		resp := postJSON(t, fx.srv.URL+"/v1/ask", map[string]any{
			"scan_id":  "missing",
			"question": "does this have milk?",
		})
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("provider failure maps to bad gateway", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)
		id := seedScan(t, fx)
		fx.llm.CompleteResponse = nil
		fx.llm.CompleteErr = errTest

		resp := postJSON(t, fx.srv.URL+"/v1/ask", map[string]any{
			"scan_id":  id,
			"question": "does this have milk?",
		})
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", resp.StatusCode)
		}
	})

	t.Run("unconfigured", func(t *testing.T) {
		t.Parallel()
		s := NewServer(pipeline.New())
		srv := httptest.NewServer(s.Handler())
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/v1/ask", map[string]any{
			"scan_id":  "x",
			"question": "anything",
		})
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})
}

func TestScansEndpoints(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := func(t *testing.T, fx *serverFixture) {
		t.Helper()
		scans := []history.Scan{
			{ID: "a", Barcode: "111", ProductName: "Oat Bar", Outcome: "ok", Record: []byte(`{}`), CreatedAt: base},
			{ID: "b", Barcode: "222", ProductName: "Rice Cakes", DetectedAllergens: []string{"Soy"}, Outcome: "ok", Record: []byte(`{}`), CreatedAt: base.Add(time.Hour)},
		}
		for _, sc := range scans {
			if err := fx.store.SaveScan(context.Background(), sc); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
	}

	t.Run("list newest first", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)
		seed(t, fx)

		resp, err := http.Get(fx.srv.URL + "/v1/scans")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var got struct {
			Scans []scanSummaryJSON `json:"scans"`
		}
		decodeJSON(t, resp, &got)
		if len(got.Scans) != 2 || got.Scans[0].ScanID != "b" || got.Scans[1].ScanID != "a" {
			t.Errorf("scans = %+v", got.Scans)
		}
	})

	t.Run("allergen filter", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)
		seed(t, fx)

		resp, err := http.Get(fx.srv.URL + "/v1/scans?allergen=Soy")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		var got struct {
			Scans []scanSummaryJSON `json:"scans"`
		}
		decodeJSON(t, resp, &got)
		if len(got.Scans) != 1 || got.Scans[0].ScanID != "b" {
			t.Errorf("scans = %+v", got.Scans)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)

		resp, err := http.Get(fx.srv.URL + "/v1/scans?limit=zero")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("get by id", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)
		seed(t, fx)

		resp, err := http.Get(fx.srv.URL + "/v1/scans/a")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var got struct {
			Scan   scanSummaryJSON `json:"scan"`
			Record json.RawMessage `json:"record"`
		}
		decodeJSON(t, resp, &got)
		if got.Scan.ProductName != "Oat Bar" {
			t.Errorf("scan = %+v", got.Scan)
		}

		missing, err := http.Get(fx.srv.URL + "/v1/scans/missing")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer missing.Body.Close()
		if missing.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", missing.StatusCode)
		}
	})
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(fx.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}
