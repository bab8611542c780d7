package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/carebridgehq/assistant-sync-go/project"
	"github.com/carebridgehq/assistant-sync-go/types"
)

const (
	defaultBaseInterval = 500 * time.Millisecond
	defaultMaxInterval  = 5 * time.Second
)

// PollPolicy shapes the backoff between run status fetches. Zero values
// take the defaults; MaxAttempts <= 0 polls until the context ends.
type PollPolicy struct {
	MaxAttempts  int
	BaseInterval time.Duration
	MaxInterval  time.Duration
}

func normalizePollPolicy(in PollPolicy) PollPolicy {
	out := in
	if out.BaseInterval <= 0 {
		out.BaseInterval = defaultBaseInterval
	}
	if out.MaxInterval <= 0 {
		out.MaxInterval = defaultMaxInterval
	}
	if out.MaxInterval < out.BaseInterval {
		out.MaxInterval = out.BaseInterval
	}
	return out
}

func (p PollPolicy) intervalForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseInterval
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	if delay > p.MaxInterval {
		return p.MaxInterval
	}
	return delay
}

// Poller watches a run until the remote reports a terminal status.
type Poller struct {
	api    RemoteAPI
	policy PollPolicy
}

func NewPoller(api RemoteAPI, policy PollPolicy) (*Poller, error) {
	if api == nil {
		return nil, fmt.Errorf("remote API is required")
	}
	return &Poller{
		api:    api,
		policy: normalizePollPolicy(policy),
	}, nil
}

// WaitForTerminal polls the thread's runs with exponential backoff until
// the target run reaches a terminal status, the attempt budget runs out,
// or the context ends. Transient fetch errors are absorbed; the last one
// is surfaced only if the budget is exhausted without ever seeing the
// run settle.
func (p *Poller) WaitForTerminal(ctx context.Context, threadID, runID string) (types.Run, error) {
	if threadID == "" || runID == "" {
		return types.Run{}, fmt.Errorf("thread id and run id are required")
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		raws, err := p.api.ListRuns(ctx, threadID)
		if err != nil {
			lastErr = err
		} else {
			for _, run := range project.Runs(raws, threadID, "") {
				if run.ID != runID {
					continue
				}
				if run.Status.Terminal() {
					return run, nil
				}
				break
			}
		}

		if p.policy.MaxAttempts > 0 && attempt >= p.policy.MaxAttempts {
			if lastErr != nil {
				return types.Run{}, fmt.Errorf("run %s did not settle after %d attempts: %w", runID, attempt, lastErr)
			}
			return types.Run{}, fmt.Errorf("run %s did not settle after %d attempts", runID, attempt)
		}

		timer := time.NewTimer(p.policy.intervalForAttempt(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.Run{}, ctx.Err()
		case <-timer.C:
		}
	}
}
