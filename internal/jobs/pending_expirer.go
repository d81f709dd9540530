package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const pendingExpirerName = "pending-call-expirer"

// PendingExpirer is the part of the call service the expirer drives.
type PendingExpirer interface {
	ExpirePending(ctx context.Context, timeout time.Duration) (int, error)
}

// PendingCallExpirer rejects calls nobody answered within the timeout, so the
// astrologer's queue can move on.
type PendingCallExpirer struct {
	calls    PendingExpirer
	timeout  time.Duration
	interval time.Duration
	log      *zap.Logger
}

func NewPendingCallExpirer(calls PendingExpirer, timeout, interval time.Duration, log *zap.Logger) *PendingCallExpirer {
	if log == nil {
		log = zap.NewNop()
	}
	return &PendingCallExpirer{calls: calls, timeout: timeout, interval: interval, log: log}
}

func (j *PendingCallExpirer) Name() string { return pendingExpirerName }

// NextRun is one sweep interval from now.
func (j *PendingCallExpirer) NextRun(now time.Time) time.Time { return now.Add(j.interval) }

func (j *PendingCallExpirer) Run(ctx context.Context) error {
	n, err := j.calls.ExpirePending(ctx, j.timeout)
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info("pending calls expired", zap.String("job_name", j.Name()), zap.Int("count", n))
	}
	return nil
}
