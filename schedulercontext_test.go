package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerContext_EnterExitEmpty(t *testing.T) {
	c := NewSchedulerContext()
	c.Start(frozenClock(time.Unix(0, 0)))

	select {
	case <-c.Empty():
	default:
		t.Fatal("context must start empty")
	}

	require.True(t, c.Enter())
	require.EqualValues(t, 1, c.InFlight())
	empty := c.Empty()
	select {
	case <-empty:
		t.Fatal("context must not be empty with in-flight work")
	default:
	}

	c.Exit()
	select {
	case <-empty:
	case <-time.After(time.Second):
		t.Fatal("empty must fire once in-flight returns to zero")
	}
}

func TestSchedulerContext_StopRejectsEnter(t *testing.T) {
	c := NewSchedulerContext()
	c.Start(frozenClock(time.Unix(0, 0)))
	c.Stop()
	require.False(t, c.Enter())
	require.EqualValues(t, 0, c.InFlight())
}

func TestSchedulerContext_PastFinalize(t *testing.T) {
	c := NewSchedulerContext()
	base := time.Unix(100, 0)
	require.False(t, c.PastFinalize(base))

	c.SetFinalizeTime(base)
	require.False(t, c.PastFinalize(base))
	require.True(t, c.PastFinalize(base.Add(time.Second)))
	require.False(t, c.PastFinalize(base.Add(-time.Second)))
}
