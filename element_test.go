package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipelineElement_NextIDsAreSequentialAndIndependent(t *testing.T) {
	p := New()
	el := p.CreateElement("stage", nil)

	require.Equal(t, int32(1), el.nextEmitterID())
	require.Equal(t, int32(2), el.nextEmitterID())
	require.Equal(t, int32(1), el.nextReceiverID())
	require.Equal(t, int32(2), el.nextReceiverID())
}

func TestPipelineElement_CloseEmittersClosesEveryOwnedEmitter(t *testing.T) {
	p := New()
	el := p.CreateElement("stage", nil)
	out1 := CreateEmitter[int](el, "out1")
	out2 := CreateEmitter[string](el, "out2")

	el.closeEmitters(time.Unix(10, 0))

	require.ErrorIs(t, out1.Post(1, time.Unix(11, 0)), ErrClosed)
	require.ErrorIs(t, out2.Post("x", time.Unix(11, 0)), ErrClosed)
}

func TestPipelineElement_UnsubscribeReceiversDetachesEveryOwnedReceiver(t *testing.T) {
	p := New()
	src := p.CreateElement("src", nil)
	sink := p.CreateElement("sink", nil)

	out := CreateEmitter[int](src, "out")
	var got []int
	in := CreateReceiver[int](sink, "in", func(m Message[int]) { got = append(got, m.Data) })
	require.NoError(t, out.Subscribe(in, UnlimitedPolicy[int](), false))

	var detached bool
	in.OnUnsubscribed(func(time.Time) { detached = true })

	sink.unsubscribeReceivers()
	require.True(t, detached)
}

func TestPipelineElement_StateStartsNotStarted(t *testing.T) {
	p := New()
	el := p.CreateElement("stage", nil)
	require.Equal(t, NotStarted, el.State())
}
