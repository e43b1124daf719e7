package settlement

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper cancels split sessions the group walked away from. A split
// with no payment activity inside the inactivity window is abandoned;
// cancelling it frees the table session to end or re-split.
type Sweeper struct {
	service  *Service
	interval time.Duration
	window   time.Duration
	log      *logrus.Logger
}

// NewSweeper creates a sweeper that checks every interval for splits
// idle longer than window.
func NewSweeper(service *Service, interval, window time.Duration, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		window:   window,
		log:      log,
	}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, err := s.service.CancelStale(ctx, s.window)
			if err != nil {
				s.log.WithError(err).Warn("stale split sweep failed")
				continue
			}
			if cancelled > 0 {
				s.log.WithField("cancelled", cancelled).Info("cancelled stale split sessions")
			}
		}
	}
}
