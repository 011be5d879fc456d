package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/telemetry"
)

const sweepTimeout = 30 * time.Second

// HandshakeExpirer times out sign-ins past their step deadline.
type HandshakeExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type sweep struct {
	name string
	run  func(context.Context) (int64, error)
}

// CleanupJob runs every sweep once at start and then on each tick until its
// context ends. A failing sweep is logged and retried on the next tick.
type CleanupJob struct {
	sweeps   []sweep
	interval time.Duration
}

// NewCleanupJob sweeps stale handshakes. A nil expirer leaves it idle.
func NewCleanupJob(handshakes HandshakeExpirer, interval time.Duration) *CleanupJob {
	j := &CleanupJob{interval: interval}
	if handshakes != nil {
		j.sweeps = append(j.sweeps, sweep{name: "handshakes", run: handshakes.ExpireStale})
	}
	return j
}

func (j *CleanupJob) Run(ctx context.Context) {
	log.Info().Dur("interval", j.interval).Int("sweeps", len(j.sweeps)).Msg("cleanup job started")
	defer log.Info().Msg("cleanup job stopped")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.sweepAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *CleanupJob) sweepAll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	for _, s := range j.sweeps {
		removed, err := s.run(ctx)
		if err != nil {
			log.Error().Err(err).Str("sweep", s.name).Msg("cleanup sweep failed")
			continue
		}
		if removed > 0 {
			telemetry.CleanupRemoved.WithLabelValues(s.name).Add(float64(removed))
			log.Info().Int64("removed", removed).Str("sweep", s.name).Msg("cleanup sweep done")
		}
	}
}
