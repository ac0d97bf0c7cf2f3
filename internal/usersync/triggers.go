package usersync

import (
	"context"
	"time"
)

// Strategy selects how a remote store learns about server-side changes.
type Strategy string

const (
	// StrategyPush subscribes to the service event stream.
	StrategyPush Strategy = "push"
	// StrategyPoll revalidates on a fixed interval.
	StrategyPoll Strategy = "poll"
	// StrategyNone relies on explicit Revalidate calls and signals only.
	StrategyNone Strategy = "none"
)

// DefaultPollInterval is used when StrategyPoll has no interval configured.
const DefaultPollInterval = 2 * time.Second

// Trigger source names, also used as metric labels.
const (
	SourceInitial    = "initial"
	SourceManual     = "manual"
	SourcePush       = "push"
	SourceReconnect  = "reconnect"
	SourcePoll       = "poll"
	SourceFocus      = "focus"
	SourceOnline     = "online"
	SourceForeground = "foreground"
)

// Revalidation configures the triggers of a remote store. The signal
// channels are optional; each receive requests a revalidation.
type Revalidation struct {
	Strategy     Strategy
	PollInterval time.Duration
	Focus        <-chan struct{}
	Online       <-chan struct{}
	Foreground   <-chan struct{}
	// Extra triggers run next to the configured ones.
	Extra []Trigger
}

// Trigger requests revalidations until ctx is cancelled.
type Trigger interface {
	Run(ctx context.Context, fire func(source string)) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, fire func(source string)) error

// Run implements Trigger.
func (f TriggerFunc) Run(ctx context.Context, fire func(source string)) error {
	return f(ctx, fire)
}

// PollTrigger fires on a fixed interval.
type PollTrigger struct {
	Interval time.Duration
}

// Run implements Trigger.
func (p PollTrigger) Run(ctx context.Context, fire func(source string)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fire(SourcePoll)
		}
	}
}

// SignalTrigger fires whenever C receives. A closed channel ends the trigger.
type SignalTrigger struct {
	Source string
	C      <-chan struct{}
}

// Run implements Trigger.
func (s SignalTrigger) Run(ctx context.Context, fire func(source string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-s.C:
			if !ok {
				return nil
			}
			fire(s.Source)
		}
	}
}

func (c Revalidation) triggers(stream Trigger) []Trigger {
	var out []Trigger
	switch c.Strategy {
	case StrategyNone:
	case StrategyPoll:
		out = append(out, PollTrigger{Interval: c.PollInterval})
	default:
		if stream != nil {
			out = append(out, stream)
		}
	}
	for _, sig := range []SignalTrigger{
		{Source: SourceFocus, C: c.Focus},
		{Source: SourceOnline, C: c.Online},
		{Source: SourceForeground, C: c.Foreground},
	} {
		if sig.C != nil {
			out = append(out, sig)
		}
	}
	return append(out, c.Extra...)
}
