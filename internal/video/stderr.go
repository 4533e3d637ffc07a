package video

import (
	"bytes"
	"strings"
	"sync"
)

// lastLines хранит последние n строк stderr ffmpeg для текста ошибок.
// Пишет горутина os/exec, читает сессия, поэтому под мьютексом.
type lastLines struct {
	mu      sync.Mutex
	partial bytes.Buffer
	lines   []string
	current int
}

func newLastLines(limit int) *lastLines {
	return &lastLines{lines: make([]string, limit)}
}

func (lb *lastLines) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.partial.Write(p)
	b := lb.partial.Bytes()
	pos := 0
	for {
		i := bytes.IndexAny(b[pos:], "\n\r")
		if i < 0 {
			break
		}
		lb.add(string(b[pos : pos+i+1]))
		pos += i + 1
	}
	rest := append([]byte(nil), b[pos:]...)
	lb.partial.Reset()
	lb.partial.Write(rest)
	return len(p), nil
}

// Close сбрасывает недописанную строку в буфер.
func (lb *lastLines) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.partial.Len() > 0 {
		lb.add(lb.partial.String())
	}
	lb.partial.Reset()
	return nil
}

func (lb *lastLines) add(line string) {
	lb.lines[lb.current] = line
	lb.current = (lb.current + 1) % len(lb.lines)
}

// String последние строки по порядку, без хвостовых пробелов.
func (lb *lastLines) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	var sb strings.Builder
	for i := 0; i < len(lb.lines); i++ {
		sb.WriteString(lb.lines[(lb.current+i)%len(lb.lines)])
	}
	return strings.TrimRightFunc(sb.String(), func(r rune) bool { return r == '\n' || r == '\r' || r == ' ' })
}
