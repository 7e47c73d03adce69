package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReplayDescriptor_ToClockEnforced(t *testing.T) {
	left := time.Unix(1000, 0).UTC()
	d := ReplayDescriptor{Interval: TimeInterval{Left: left, Right: left.Add(time.Hour)}, EnforceReplayClock: true}
	clock := d.toClock()
	require.True(t, clock.Now().After(left) || clock.Now().Equal(left))
}

func TestReplayDescriptor_ToClockAsFastAsPossibleFreezes(t *testing.T) {
	left := time.Unix(2000, 0).UTC()
	d := ReplayDescriptor{Interval: TimeInterval{Left: left, Right: left.Add(time.Hour)}}
	clock := d.toClock()
	require.True(t, clock.Now().Equal(left))
	time.Sleep(5 * time.Millisecond)
	require.True(t, clock.Now().Equal(left), "dilation 0 must never advance past Interval.Left on its own")
}

func TestLoadReplayDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replay.yaml")
	body := "interval:\n  left: 2024-01-01T00:00:00Z\n  right: 2024-01-01T01:00:00Z\nuseOriginatingTime: true\nenforceReplayClock: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	d, err := LoadReplayDescriptor(path)
	require.NoError(t, err)
	require.True(t, d.UseOriginatingTime)
	require.True(t, d.EnforceReplayClock)
	require.Equal(t, 2024, d.Interval.Left.Year())
}

func TestLoadReplayDescriptor_MissingFile(t *testing.T) {
	_, err := LoadReplayDescriptor(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
