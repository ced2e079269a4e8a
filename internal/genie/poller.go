package genie

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Poll defaults, matching the tool contract: ten minute budget, five second
// interval, backoff kicking in after two minutes and capping at thirty
// seconds.
const (
	DefaultPollTimeout  = 600 * time.Second
	DefaultPollInterval = 5 * time.Second

	backoffAfter      = 120 * time.Second
	backoffMultiplier = 1.5
	maxPollInterval   = 30 * time.Second

	// maxConsecutiveUnknown bounds how many UNKNOWN statuses in a row the
	// poller tolerates before giving up. An unrecognized status would
	// otherwise poll as non-terminal until the full budget is burned.
	maxConsecutiveUnknown = 10
)

// ErrInvalidInterval is returned when the poll interval is not positive.
var ErrInvalidInterval = errors.New("poll interval must be positive")

// MessageFetcher is the single gateway operation the poller depends on.
type MessageFetcher interface {
	GetMessage(ctx context.Context, spaceID, conversationID, messageID string) (*Message, error)
}

// PollOptions bounds one poll session. Zero values select the defaults via
// Normalize; an explicitly non-positive timeout yields an immediate timeout
// outcome without fetching.
type PollOptions struct {
	Timeout  time.Duration
	Interval time.Duration

	// FetchRetries is how many times a failed status fetch is retried
	// before the poll aborts. The default of zero aborts on the first
	// failure.
	FetchRetries int
}

// PolledMessage is a message observed at a terminal status, annotated with
// how much polling it took to get there.
type PolledMessage struct {
	Message
	PollCount      int     `json:"poll_count"`
	ElapsedSeconds float64 `json:"elapsed_time"`
}

// TimeoutError reports a poll session that ended without observing a
// terminal status. It is distinct from a terminal failure status: the remote
// operation's fate is unknown, the caller merely stopped waiting.
type TimeoutError struct {
	Reason         string        `json:"error"`
	MessageID      string        `json:"message_id"`
	ConversationID string        `json:"conversation_id"`
	SpaceID        string        `json:"space_id"`
	LastStatus     MessageStatus `json:"status"`
	PollCount      int           `json:"poll_count"`
	ElapsedSeconds float64       `json:"elapsed_time"`
}

func (e *TimeoutError) Error() string { return e.Reason }

// Poller drives a message to a terminal status by repeated fetches with
// adaptive backoff. now and sleep are injectable for tests; sleep must honor
// context cancellation so a poll never stalls an unrelated run.
type Poller struct {
	gateway MessageFetcher

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller over the given gateway.
func NewPoller(gateway MessageFetcher) *Poller {
	return &Poller{
		gateway: gateway,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll fetches the message status until it is terminal or the budget runs
// out. Exactly one outcome per invocation:
//
//   - a terminal status (COMPLETED or a failure status) returns the polled
//     message — failure statuses are final answers, not retried;
//   - an exhausted budget returns a *TimeoutError carrying the last known
//     status, poll count and elapsed time;
//   - a fetch failure aborts the poll (after FetchRetries extra attempts)
//     and surfaces as an error.
func (p *Poller) Poll(ctx context.Context, spaceID, conversationID, messageID string, opts PollOptions) (*PolledMessage, error) {
	if opts.Interval <= 0 {
		return nil, ErrInvalidInterval
	}

	start := p.now()
	interval := opts.Interval
	elapsed := time.Duration(0)
	pollCount := 0
	consecutiveUnknown := 0
	lastStatus := StatusUnknown

	timeoutErr := func(reason string) *TimeoutError {
		return &TimeoutError{
			Reason:         reason,
			MessageID:      messageID,
			ConversationID: conversationID,
			SpaceID:        spaceID,
			LastStatus:     lastStatus,
			PollCount:      pollCount,
			ElapsedSeconds: elapsed.Seconds(),
		}
	}

	for elapsed < opts.Timeout {
		msg, err := p.fetch(ctx, spaceID, conversationID, messageID, opts.FetchRetries)
		if err != nil {
			return nil, fmt.Errorf("polling message %s: %w", messageID, err)
		}
		pollCount++
		lastStatus = msg.Status

		if msg.Status.Terminal() {
			return &PolledMessage{
				Message:        *msg,
				PollCount:      pollCount,
				ElapsedSeconds: elapsed.Seconds(),
			}, nil
		}

		if msg.Status == StatusUnknown {
			consecutiveUnknown++
			if consecutiveUnknown >= maxConsecutiveUnknown {
				return nil, timeoutErr(fmt.Sprintf("status UNKNOWN for %d consecutive polls", consecutiveUnknown))
			}
		} else {
			consecutiveUnknown = 0
		}

		if err := p.sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("polling message %s: %w", messageID, err)
		}

		// Backoff only engages past the two minute mark and the interval
		// never shrinks within one poll session.
		if elapsed > backoffAfter && interval < maxPollInterval {
			interval = min(time.Duration(float64(interval)*backoffMultiplier), maxPollInterval)
		}
		elapsed = p.now().Sub(start)
	}

	return nil, timeoutErr(fmt.Sprintf("Timeout after %d seconds", int(opts.Timeout.Seconds())))
}

func (p *Poller) fetch(ctx context.Context, spaceID, conversationID, messageID string, retries int) (*Message, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		msg, err := p.gateway.GetMessage(ctx, spaceID, conversationID, messageID)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// Normalize fills in default timeout and interval for unset options.
func (o PollOptions) Normalize() PollOptions {
	if o.Timeout == 0 {
		o.Timeout = DefaultPollTimeout
	}
	if o.Interval == 0 {
		o.Interval = DefaultPollInterval
	}
	return o
}
