// Package ringlog keeps a bounded in-memory buffer of backend output lines.
// Oldest lines are dropped once the capacity is reached so the buffer can be
// queried cheaply by the UI regardless of how chatty the backend is.
package ringlog

import (
	"bufio"
	"io"
	"sync"
)

// DefaultCapacity matches the backend's own live log buffer size.
const DefaultCapacity = 2000

type Buffer struct {
	mu    sync.Mutex
	lines []string
	head  int
	count int
}

// New returns a ring buffer holding up to capacity lines.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{lines: make([]string, capacity)}
}

func (b *Buffer) Append(line string) {
	b.mu.Lock()
	idx := (b.head + b.count) % len(b.lines)
	b.lines[idx] = line
	if b.count < len(b.lines) {
		b.count++
	} else {
		b.head = (b.head + 1) % len(b.lines)
	}
	b.mu.Unlock()
}

// Tail returns up to n most recent lines, oldest first.
// n <= 0 returns everything currently buffered.
func (b *Buffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]string, 0, n)
	start := b.count - n
	for i := start; i < b.count; i++ {
		out = append(out, b.lines[(b.head+i)%len(b.lines)])
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	b.head = 0
	b.count = 0
	b.mu.Unlock()
}

// Capture reads r line by line into the buffer until EOF, mirroring each
// line to mirror when non-nil. It is meant to run in its own goroutine per
// process stream; read errors terminate the capture silently.
func (b *Buffer) Capture(r io.Reader, mirror io.Writer) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		b.Append(line)
		if mirror != nil {
			_, _ = mirror.Write([]byte(line + "\n"))
		}
	}
}
