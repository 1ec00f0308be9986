package models

import (
	"fmt"
	"strings"
	"time"
)

const fileDateLayout = "20060102"

// FileDate is a calendar date carried in static file names as yyyymmdd.
// It has no time-of-day or zone; comparisons are by calendar day.
type FileDate struct {
	time.Time
}

// ParseFileDate parses a yyyymmdd string.
func ParseFileDate(s string) (FileDate, error) {
	t, err := time.Parse(fileDateLayout, s)
	if err != nil {
		return FileDate{}, fmt.Errorf("parsing file date %q: %w", s, err)
	}
	return FileDate{Time: t}, nil
}

// MustFileDate is ParseFileDate for literals known to be valid.
func MustFileDate(s string) FileDate {
	d, err := ParseFileDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d FileDate) String() string {
	return d.Time.Format(fileDateLayout)
}

// OnOrBefore reports whether d is the same day as other or earlier.
func (d FileDate) OnOrBefore(other FileDate) bool {
	return !d.Time.After(other.Time)
}

// UnmarshalJSON accepts "yyyymmdd" or null.
func (d *FileDate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "null" || s == "" {
		return nil
	}
	parsed, err := ParseFileDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d FileDate) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("\"%s\"", d.String())), nil
}
