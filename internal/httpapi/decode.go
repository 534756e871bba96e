package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const maxJSONBody = 1 << 20

// validator is implemented by every request body. decode runs it so
// handlers only see well-formed input.
type validator interface {
	validate() error
}

var errBadRequest = errors.New("bad request")

// decode reads a single JSON object into v, rejecting unknown fields and
// trailing data, then validates it.
func decode(c *call, v validator) error {
	c.r.Body = http.MaxBytesReader(c.w, c.r.Body, maxJSONBody)
	dec := json.NewDecoder(c.r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadRequest)
	}
	if err := v.validate(); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// queryID parses a positive integer query parameter.
func queryID(r *http.Request, key string) (int64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
