package sse

import (
	"fmt"
	"io"
	"strings"
)

// WriteEvent serializes one event in the wire grammar: one line per
// field, data split back into one line per newline, terminated by a
// blank line.
func WriteEvent(w io.Writer, ev *Event) error {
	var b strings.Builder

	if ev.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Event)
	}
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Retry >= 0 {
		fmt.Fprintf(&b, "retry: %d\n", ev.Retry)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
