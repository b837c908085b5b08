package livesync

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// readEvents parses a text/event-stream body and invokes handle for each
// complete named event. Comment lines (leading colon) are the server's
// keep-alive signal and are skipped, never surfaced as events. Returns when
// the stream ends, which the caller treats as a disconnect.
func readEvents(body io.Reader, handle func(name string, data []byte)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var name string
	var data bytes.Buffer

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line terminates an event
			if name != "" || data.Len() > 0 {
				handle(name, append([]byte(nil), data.Bytes()...))
			}
			name = ""
			data.Reset()

		case strings.HasPrefix(line, ":"):
			// keep-alive comment

		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
