//go:build linux || darwin

package pipeline

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// futuresWaker lets Submit wake a sleeping futures thread without the
// thread busy-polling the clock. It is a self-pipe: the futures thread
// blocks in a timed poll on readFd, and Wake writes a single byte. The
// pending flag coalesces repeated wakes between drains into one syscall,
// mirroring the teacher's wakeUpSignalPending/submitWakeup/drainWakeUpPipe
// trio.
type futuresWaker struct {
	readFd, writeFd int
	pending         atomic.Bool
}

func newFuturesWaker() (*futuresWaker, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, err
		}
	}
	return &futuresWaker{readFd: fds[0], writeFd: fds[1]}, nil
}

// Wake signals the futures thread. Safe to call concurrently; redundant
// wakes occurring before the next Drain are coalesced into a single byte.
func (w *futuresWaker) Wake() {
	if w.pending.CompareAndSwap(false, true) {
		_, _ = unix.Write(w.writeFd, []byte{0})
	}
}

// Wait blocks until Wake is called or timeout elapses. A negative timeout
// blocks indefinitely.
func (w *futuresWaker) Wait(timeout time.Duration) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
	}
	fds := []unix.PollFd{{Fd: int32(w.readFd), Events: unix.POLLIN}}
	_, _ = unix.Poll(fds, ms)
}

// Drain empties the pipe and resets the coalescing flag. Call after Wait
// returns, before re-checking queue state.
func (w *futuresWaker) Drain() {
	var buf [64]byte
	for {
		_, err := unix.Read(w.readFd, buf[:])
		if err != nil {
			break
		}
	}
	w.pending.Store(false)
}

func (w *futuresWaker) Close() error {
	_ = unix.Close(w.readFd)
	if w.writeFd != w.readFd {
		_ = unix.Close(w.writeFd)
	}
	return nil
}
