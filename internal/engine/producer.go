package engine

import (
	"context"
	"time"

	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/logging"
)

// Producer runs the single logical claim-and-enqueue loop, per spec.md
// §4.3.2. Grounded on the teacher's worker.loop() sleep-between-iterations
// pacing (a fresh time.NewTimer reset per outcome rather than a fixed
// time.Ticker, since the delay is outcome-driven, not constant).
type Producer struct {
	claiming *ClaimingService
	delay    *DelayCalculator
	ch       chan<- *job.Job
	logger   logging.StructuredLogger
}

// NewProducer builds a Producer. ch is closed by Run on exit, so the
// Producer must own the only writer side of it.
func NewProducer(claiming *ClaimingService, delay *DelayCalculator, ch chan<- *job.Job, logger logging.StructuredLogger) *Producer {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Producer{claiming: claiming, delay: delay, ch: ch, logger: logger}
}

// Run blocks until ctx is canceled, then closes the channel.
func (p *Producer) Run(ctx context.Context) {
	defer close(p.ch)

	for {
		if ctx.Err() != nil {
			return
		}

		outcome := p.claiming.ClaimAndEnqueue(ctx)
		p.logger.Debug("producer.cycle", "outcome", outcome.String())

		d := p.delay.Delay(outcome)
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
