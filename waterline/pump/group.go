package pump

import (
	"context"
	"sync"

	"go.uber.org/multierr"
)

// Group runs independent sessions concurrently. A failing session never
// affects its siblings; Wait reports every failure that occurred.
type Group struct {
	mu  sync.Mutex
	wg  sync.WaitGroup
	err error
}

// Go starts the session and tracks it in the group.
func (g *Group) Go(ctx context.Context, s *Session) {
	g.wg.Add(1)
	s.Start(ctx)
	go func() {
		defer g.wg.Done()
		if err := s.Wait(); err != nil {
			g.mu.Lock()
			g.err = multierr.Append(g.err, err)
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until every tracked session terminates and returns the
// combined errors, if any.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
