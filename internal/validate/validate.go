// Package validate contains simple input validation helpers.
package validate

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DayLayout is the calendar-day format used for post dates.
const DayLayout = "2006-01-02"

const (
	maxUsernameRunes = 64
	minPasswordLen   = 8
	maxPasswordLen   = 256
	maxFileNameBytes = 255
)

// Username normalizes a display name to NFC and validates it.
// Letters, digits, spaces and ._- are allowed; leading or trailing spaces are not.
func Username(s string) (string, error) {
	s = norm.NFC.String(s)
	if s == "" || strings.TrimSpace(s) != s {
		return "", errors.New("invalid username")
	}
	if utf8.RuneCountInString(s) > maxUsernameRunes {
		return "", errors.New("username too long")
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == ' ', r == '.', r == '_', r == '-':
		default:
			return "", errors.New("invalid username")
		}
	}
	return s, nil
}

// Password checks length bounds for a new password.
func Password(s string) error {
	if len(s) < minPasswordLen {
		return errors.New("password too short")
	}
	if len(s) > maxPasswordLen {
		return errors.New("password too long")
	}
	return nil
}

// Day parses a YYYY-MM-DD calendar day in the local time zone.
func Day(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date is required")
	}
	d, err := time.ParseInLocation(DayLayout, s, time.Local)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return d, nil
}

// FileName validates a single path element for a file or directory name.
func FileName(s string) error {
	if s == "" || s == "." || s == ".." {
		return errors.New("invalid file name")
	}
	if len(s) > maxFileNameBytes {
		return errors.New("file name too long")
	}
	if strings.ContainsAny(s, "/\\\x00") {
		return errors.New("invalid file name")
	}
	if strings.TrimSpace(s) != s {
		return errors.New("invalid file name")
	}
	return nil
}

// RootPath validates and normalizes a filesystem root path.
// Relative paths are made absolute against the working directory.
func RootPath(p string) (string, error) {
	if p == "" {
		return "", errors.New("root path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(abs)
	// Reject volume root ("/", "C:\\", etc.).
	if filepath.Dir(clean) == clean {
		return "", errors.New("root path cannot be filesystem root")
	}
	return strings.TrimRight(clean, string(filepath.Separator)), nil
}
