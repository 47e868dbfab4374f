package runner

import (
	"bytes"
	"strings"
	"sync"
)

// tailBuffer keeps the last lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
	part  bytes.Buffer
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.part.Write(p)
	for {
		line, err := t.part.ReadString('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			t.part.Reset()
			t.part.WriteString(line)
			break
		}
		t.push(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (t *tailBuffer) push(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

// Lines returns the kept lines, including a trailing unterminated one.
func (t *tailBuffer) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := append([]string{}, t.lines...)
	if t.part.Len() > 0 {
		out = append(out, t.part.String())
		if len(out) > t.max {
			out = out[len(out)-t.max:]
		}
	}
	return out
}
