package workers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper is the part of the artifact store the sweeper needs.
type Sweeper interface {
	Sweep(cutoff time.Time) (int, error)
}

// ArtifactSweeper removes artifacts a request failed to release, for example
// after a crash between acquire and release.
type ArtifactSweeper struct {
	Store    Sweeper
	Interval time.Duration
	MaxAge   time.Duration

	Logger logrus.FieldLogger

	now func() time.Time
}

// Start sweeps once immediately, then every Interval until ctx is done.
func (w *ArtifactSweeper) Start(ctx context.Context) error {
	if w.Store == nil {
		return errors.New("ArtifactSweeper missing dependency: Store must be set")
	}
	if w.Interval <= 0 {
		w.Interval = 10 * time.Minute
	}
	if w.MaxAge <= 0 {
		w.MaxAge = time.Hour
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}
	if w.now == nil {
		w.now = time.Now
	}

	w.sweep()
	go w.run(ctx)
	return nil
}

func (w *ArtifactSweeper) run(ctx context.Context) {
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.sweep()
		}
	}
}

func (w *ArtifactSweeper) sweep() int {
	n, err := w.Store.Sweep(w.now().Add(-w.MaxAge))
	if err != nil {
		w.Logger.WithError(err).Warn("artifact sweep failed")
	}
	if n > 0 {
		w.Logger.WithField("removed", n).Info("removed orphaned artifacts")
	}
	return n
}
