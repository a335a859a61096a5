// Package payload wraps a batch of serialized records into one request body.
package payload

import (
	"fmt"
	"io"
	"strings"
)

// Formatter writes records as a single body. Records are already
// serialized JSON and are written verbatim.
type Formatter interface {
	Format(w io.Writer, records []string) error
}

// Events writes {"events":[r1,r2,...]}.
type Events struct{}

// Format implements Formatter.
func (Events) Format(w io.Writer, records []string) error {
	return writeArray(w, `{"events":[`, `]}`, records)
}

// Array writes [r1,r2,...].
type Array struct{}

// Format implements Formatter.
func (Array) Format(w io.Writer, records []string) error {
	return writeArray(w, `[`, `]`, records)
}

func writeArray(w io.Writer, open, close string, records []string) error {
	if _, err := io.WriteString(w, open); err != nil {
		return err
	}
	for i, r := range records {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, r); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, close)
	return err
}

// Parse returns the formatter named by s ("events" or "array").
func Parse(s string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "events":
		return Events{}, nil
	case "array":
		return Array{}, nil
	default:
		return nil, fmt.Errorf("unknown payload format %q (want events or array)", s)
	}
}
