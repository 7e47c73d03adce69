// Command flowctl wires a minimal Pipeline together from the command line:
// a ticking counter source feeding a sink that logs every value received,
// driven by either a scripted replay descriptor or a real-time clock
// started from now. It exists as a runnable analogue of the package's doc
// comment example, not as a production tool.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	pipeline "github.com/kalgorithm/flowrt"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func main() {
	replayPath := flag.String("replay", "", "path to a YAML replay descriptor; if empty, runs real-time starting now")
	interval := flag.Duration("interval", time.Second, "ticker source interval")
	workers := flag.Int("workers", 0, "worker pool size (0 uses the default, 2x GOMAXPROCS)")
	flag.Parse()

	appLog := stumpy.L.New(stumpy.L.WithStumpy())

	replay, err := resolveReplay(*replayPath)
	if err != nil {
		appLog.Err().Err(err).Log("failed to load replay descriptor")
		os.Exit(1)
	}

	var schedOpts []pipeline.SchedulerOption
	if *workers > 0 {
		schedOpts = append(schedOpts, pipeline.WithWorkerCount(*workers))
	}
	schedOpts = append(schedOpts, pipeline.WithLogger(pipeline.NewDefaultLogger(pipeline.LevelInfo)))

	sched, err := pipeline.NewScheduler(schedOpts...)
	if err != nil {
		appLog.Err().Err(err).Log("failed to construct scheduler")
		os.Exit(1)
	}

	p := pipeline.New(pipeline.WithScheduler(sched))

	source := &tickerSource{interval: *interval}
	src := p.CreateElement("source", source)
	source.out = pipeline.CreateEmitter[int](src, "out")

	sink := &printSink{log: appLog}
	sinkEl := p.CreateElement("sink", sink)
	in := pipeline.CreateReceiver[int](sinkEl, "in", sink.receive)

	if err := source.out.Subscribe(in, pipeline.UnlimitedPolicy[int](), false); err != nil {
		appLog.Err().Err(err).Log("failed to subscribe")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := p.Run(ctx, replay); err != nil {
		appLog.Err().Err(err).Log("pipeline exited with error")
		os.Exit(1)
	}
}

func resolveReplay(path string) (pipeline.ReplayDescriptor, error) {
	if path != "" {
		return pipeline.LoadReplayDescriptor(path)
	}
	now := time.Now()
	return pipeline.ReplayDescriptor{
		Interval:           pipeline.TimeInterval{Left: now, Right: now.Add(24 * time.Hour)},
		EnforceReplayClock: true,
	}, nil
}

// tickerSource emits an incrementing counter once per interval until Stop
// is called.
type tickerSource struct {
	interval time.Duration
	out      *pipeline.Emitter[int]
	stopCh   chan struct{}
}

func (s *tickerSource) Out() *pipeline.Emitter[int] { return s.out }

func (s *tickerSource) Start(notifyCompletion func(finalOriginatingTime time.Time)) error {
	s.stopCh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case now := <-ticker.C:
				n++
				_ = s.out.Post(n, now)
			case <-s.stopCh:
				return
			}
		}
	}()
	return nil
}

func (s *tickerSource) Stop(finalOriginatingTime time.Time, notifyCompleted func()) {
	close(s.stopCh)
	_ = s.out.Close(finalOriginatingTime)
	notifyCompleted()
}

// printSink logs every value it receives through a real logiface/stumpy
// logger, distinct from the pipeline's own internal Logger.
type printSink struct {
	log *logiface.Logger[*stumpy.Event]
}

func (s *printSink) receive(m pipeline.Message[int]) {
	s.log.Info().Int("value", m.Data).Log("received")
}
