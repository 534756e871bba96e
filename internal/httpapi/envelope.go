package httpapi

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"
)

type handlerFunc func(c *call) Response

// call is the per-request state handed to handlers. uid is zero on
// public routes.
type call struct {
	w   http.ResponseWriter
	r   *http.Request
	uid int64
}

// Response is what every handler returns. The dispatcher serializes the
// first body present in the order JSON, Raw, Text; with none, only the
// status is written.
type Response struct {
	Status int
	JSON   any
	Raw    *RawBody
	Text   string
}

// RawBody is file content served with range support.
// Reader is closed after serving when it implements io.Closer.
type RawBody struct {
	Reader      io.ReadSeeker
	Name        string
	ModTime     time.Time
	ContentType string
	Attachment  bool
}

func jsonResponse(status int, v any) Response {
	return Response{Status: status, JSON: v}
}

func errorResponse(status int, msg string) Response {
	return Response{Status: status, JSON: map[string]string{"error": msg}}
}

func (s *Server) write(c *call, resp Response) {
	w := c.w
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	switch {
	case resp.JSON != nil:
		writeJSON(w, status, resp.JSON)
	case resp.Raw != nil:
		s.writeRaw(c, status, resp.Raw)
	case resp.Text != "":
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		w.Header().Set("content-length", strconv.Itoa(len(resp.Text)))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp.Text)
	default:
		w.WriteHeader(status)
	}
}

func (s *Server) writeRaw(c *call, status int, raw *RawBody) {
	if cl, ok := raw.Reader.(io.Closer); ok {
		defer cl.Close()
	}
	h := c.w.Header()
	if raw.ContentType != "" {
		h.Set("content-type", raw.ContentType)
	}
	disposition := "inline"
	if raw.Attachment {
		disposition = "attachment"
	}
	h.Set("content-disposition", mime.FormatMediaType(disposition, map[string]string{"filename": raw.Name}))
	if status != http.StatusOK {
		c.w.WriteHeader(status)
		_, _ = io.Copy(c.w, raw.Reader)
		return
	}
	http.ServeContent(c.w, c.r, raw.Name, raw.ModTime, raw.Reader)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
