package ingest

import (
	"context"
	"sync"
)

// backlog is an unbounded FIFO of paths. Push never blocks, so the watch
// can always be drained promptly regardless of how slowly paths are
// submitted.
type backlog struct {
	sync.Mutex
	paths  []string
	signal chan struct{}
}

func newBacklog() *backlog {
	return &backlog{signal: make(chan struct{}, 1)}
}

func (b *backlog) Push(path string) {
	b.Lock()
	b.paths = append(b.paths, path)
	b.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest path, waiting for one to be pushed if
// the backlog is empty. False is returned once the context is cancelled.
func (b *backlog) Pop(ctx context.Context) (string, bool) {
	for {
		if ctx.Err() != nil {
			return "", false
		}

		b.Lock()
		if len(b.paths) > 0 {
			path := b.paths[0]
			b.paths[0] = ""
			b.paths = b.paths[1:]
			b.Unlock()
			return path, true
		}
		b.Unlock()

		select {
		case <-b.signal:
		case <-ctx.Done():
			return "", false
		}
	}
}

func (b *backlog) Len() int {
	b.Lock()
	defer b.Unlock()
	return len(b.paths)
}
