/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import (
	"context"
	"time"

	"github.com/acronis/go-apidispatch/service"
)

// RefillWorker returns a worker that applies refills and penalty expiry as soon as they are due,
// waking up waiting callers without waiting for their next poll.
// Running it is optional: the state is brought up to date on every access anyway.
func (d *Dispatcher[I, O]) RefillWorker() *service.PeriodicWorker {
	return service.NewPeriodicWorker(service.WorkerFunc(d.refillTick), d.refillInterval, d.logger,
		service.WithPeriodicWorkerClock(d.clock),
		service.WithWorkerName("refill"),
		service.WithInitialDelay(d.untilNextWake()),
		service.WithNextDelayFunc(func(error) time.Duration { return d.untilNextWake() }),
	)
}

// Unit returns RefillWorker as a service.Unit.
func (d *Dispatcher[I, O]) Unit() *service.WorkerUnit {
	return service.NewWorkerUnit(d.RefillWorker())
}

func (d *Dispatcher[I, O]) refillTick(_ context.Context) error {
	d.mu.Lock()
	tr := d.advanceLocked(d.clock.Now())
	d.mu.Unlock()
	d.reportTransition(tr)
	return nil
}

func (d *Dispatcher[I, O]) untilNextWake() time.Duration {
	now := d.clock.Now()
	d.mu.Lock()
	tr := d.advanceLocked(now)
	next := d.nextWakeLocked()
	d.mu.Unlock()
	d.reportTransition(tr)
	return next.Sub(now)
}
