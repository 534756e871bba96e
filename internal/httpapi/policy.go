package httpapi

import (
	"time"

	"advent/internal/validate"
)

// postPolicy decides post availability from the server's local calendar
// day. Dates compare as YYYY-MM-DD strings.
type postPolicy struct {
	now func() time.Time
}

func (p postPolicy) today() string {
	return p.now().Format(validate.DayLayout)
}

// Readable reports whether a post and its comments may be retrieved.
func (p postPolicy) Readable(date string) bool {
	return date != "" && date <= p.today()
}

// Open reports whether a post accepts comments.
func (p postPolicy) Open(date string) bool {
	return date == p.today()
}
