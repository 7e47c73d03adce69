package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeInterval is a closed-open virtual time range: [Left, Right).
type TimeInterval struct {
	Left  time.Time
	Right time.Time
}

// ReplayDescriptor is the caller-facing configuration Pipeline.Run converts
// into a Clock.
type ReplayDescriptor struct {
	// Interval bounds the virtual time the replay covers. Left becomes the
	// Clock's virtual origin.
	Interval TimeInterval `yaml:"interval"`

	// UseOriginatingTime selects whether sources should pace themselves by
	// each message's originating time (true) or by arrival order alone
	// (false). Consulted by source components, not by the core itself.
	UseOriginatingTime bool `yaml:"useOriginatingTime"`

	// EnforceReplayClock selects real-time pacing (dilation 1.0) when true.
	// When false, the Clock is built with dilation 0 for as-fast-as-possible
	// replay; pair this with WithDelayFutureUntilDue(false) on the Scheduler,
	// since a dilation-0 Clock never advances past Interval.Left on its own
	// and future items would otherwise never become due.
	EnforceReplayClock bool `yaml:"enforceReplayClock"`
}

// toClock converts the descriptor into a Clock anchored at Interval.Left.
func (d ReplayDescriptor) toClock() Clock {
	dilation := 0.0
	if d.EnforceReplayClock {
		dilation = 1.0
	}
	return NewClock(d.Interval.Left, time.Now(), dilation)
}

// LoadReplayDescriptor reads and parses a YAML-encoded ReplayDescriptor from
// path, for scripted, deterministic replay fixtures.
func LoadReplayDescriptor(path string) (ReplayDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReplayDescriptor{}, fmt.Errorf("pipeline: load replay descriptor: %w", err)
	}
	var d ReplayDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return ReplayDescriptor{}, fmt.Errorf("pipeline: parse replay descriptor %s: %w", path, err)
	}
	return d, nil
}
