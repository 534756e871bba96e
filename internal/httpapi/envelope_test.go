package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type closeTracker struct {
	*strings.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func writeResponse(resp Response) *httptest.ResponseRecorder {
	s := &Server{log: testLogger()}
	w := httptest.NewRecorder()
	s.write(&call{w: w, r: httptest.NewRequest(http.MethodGet, "/", nil)}, resp)
	return w
}

// TestWritePrefersJSON serializes the first body present.
func TestWritePrefersJSON(t *testing.T) {
	raw := &closeTracker{Reader: strings.NewReader("raw")}
	w := writeResponse(Response{
		Status: http.StatusCreated,
		JSON:   map[string]int{"n": 1},
		Raw:    &RawBody{Reader: raw, Name: "x.bin"},
		Text:   "text",
	})
	if w.Code != http.StatusCreated || strings.TrimSpace(w.Body.String()) != `{"n":1}` {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("content-type") != "application/json" {
		t.Fatalf("content-type=%q", w.Header().Get("content-type"))
	}
}

// TestWriteRawBeforeText serves raw bytes and closes the reader.
func TestWriteRawBeforeText(t *testing.T) {
	raw := &closeTracker{Reader: strings.NewReader("raw bytes")}
	w := writeResponse(Response{
		Raw:  &RawBody{Reader: raw, Name: "x.bin", ModTime: time.Unix(0, 0), ContentType: "application/octet-stream"},
		Text: "text",
	})
	if w.Code != http.StatusOK || w.Body.String() != "raw bytes" {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !raw.closed {
		t.Fatalf("raw reader not closed")
	}
}

// TestWriteTextAndEmpty covers the remaining envelope shapes.
func TestWriteTextAndEmpty(t *testing.T) {
	w := writeResponse(Response{Status: http.StatusAccepted, Text: "ok"})
	if w.Code != http.StatusAccepted || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("content-type"), "text/plain") {
		t.Fatalf("content-type=%q", w.Header().Get("content-type"))
	}

	w = writeResponse(Response{Status: http.StatusNoContent})
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

// TestStatusForHidesInternals maps unknown errors to a generic 500.
func TestStatusForHidesInternals(t *testing.T) {
	code, msg := statusFor(errString("sql: connection refused at 10.0.0.5"))
	if code != http.StatusInternalServerError || msg != "server error" {
		t.Fatalf("code=%d msg=%q", code, msg)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

// TestRecoverReturnsJSON500 turns panics into the error envelope.
func TestRecoverReturnsJSON500(t *testing.T) {
	s := &Server{log: testLogger()}
	h := s.withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "server error") {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

// TestPostPolicy separates readable from open posts.
func TestPostPolicy(t *testing.T) {
	p := postPolicy{now: func() time.Time { return testToday }}
	cases := []struct {
		date           string
		readable, open bool
	}{
		{"2024-12-09", true, false},
		{"2024-12-10", true, true},
		{"2024-12-11", false, false},
		{"", false, false},
	}
	for _, c := range cases {
		if got := p.Readable(c.date); got != c.readable {
			t.Fatalf("Readable(%q)=%v", c.date, got)
		}
		if got := p.Open(c.date); got != c.open {
			t.Fatalf("Open(%q)=%v", c.date, got)
		}
	}
}
