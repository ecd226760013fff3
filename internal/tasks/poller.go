package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
)

// Poller refreshes the stored user's library on an interval.
//
// It implements suture.Service.
type Poller struct {
	engine   *Engine
	interval time.Duration
	progress chan<- ProgressUpdate
}

// NewPoller creates a [Poller]. progress may be nil.
func NewPoller(engine *Engine, interval time.Duration, progress chan<- ProgressUpdate) *Poller {
	return &Poller{engine: engine, interval: interval, progress: progress}
}

func (p *Poller) String() string {
	return "library-poller"
}

// Serve refreshes immediately and then on every tick until ctx is cancelled.
//
// Refresh failures are logged and retried on the next tick; a missing login is not an error.
func (p *Poller) Serve(ctx context.Context) error {
	if p.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	logger := p.engine.logger.With("component", "poller")

	cred, err := p.engine.StoredCredential()
	if errors.Is(err, shared.ErrNotAuthenticated) {
		logger.Debug("skipping refresh, no stored login")
		return
	}
	if err != nil {
		logger.Error("failed to load credential", "error", err)
		return
	}

	if _, err := p.engine.RefreshLibrary(ctx, cred, p.progress); err != nil && ctx.Err() == nil {
		logger.Warn("library refresh failed", "error", err)
	}
}
