package scheduler

import "time"

// Action is the outcome class of a backoff decision.
type Action string

const (
	// ActionRetry schedules another attempt after Decision.Delay.
	ActionRetry Action = "retry"
	// ActionTerminal means attempts are exhausted: jobs transition to
	// 'failed', email items to 'failed' plus a dead-letter entry.
	ActionTerminal Action = "terminal"
)

// Decision is the result of evaluating the retry policy after an attempt.
type Decision struct {
	Action Action
	// Delay before the next attempt. Zero when Action is ActionTerminal.
	Delay time.Duration
}

// RetryPolicy defines the exponential backoff parameters for a work queue.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Standard retry policies for the two queues. The job cap is set explicitly
// so a high max_attempts can never push a reminder past its usefulness.
var (
	JobRetryPolicy = RetryPolicy{
		BaseDelay: 5 * time.Minute,
		MaxDelay:  1 * time.Hour,
	}
	EmailRetryPolicy = RetryPolicy{
		BaseDelay: 1 * time.Minute,
		MaxDelay:  1 * time.Hour,
	}
)

// Decide evaluates the policy for an item whose attempt just failed.
// attempts is the counter AFTER the failed attempt (the first failure passes
// attempts=1). When attempts have reached maxAttempts the decision is
// terminal; otherwise the next delay is min(MaxDelay, BaseDelay * 2^(attempts-1)),
// so consecutive delays are non-decreasing up to the cap.
func Decide(policy RetryPolicy, attempts, maxAttempts int) Decision {
	if attempts >= maxAttempts {
		return Decision{Action: ActionTerminal}
	}

	exp := attempts - 1
	if exp < 0 {
		exp = 0
	}

	delay := policy.BaseDelay
	for i := 0; i < exp; i++ {
		delay *= 2
		if delay >= policy.MaxDelay || delay < 0 {
			// Cap reached (or duration overflow); no point continuing.
			return Decision{Action: ActionRetry, Delay: policy.MaxDelay}
		}
	}

	return Decision{Action: ActionRetry, Delay: delay}
}
