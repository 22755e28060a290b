/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import (
	"time"

	"github.com/acronis/go-apidispatch/log"
)

type transitionKind int

const (
	transitionNone transitionKind = iota
	transitionRefilled
	transitionPenaltyExpired
)

// transition describes a state change applied under the lock, to be reported after unlocking.
type transition struct {
	kind   transitionKind
	tokens int
}

// advanceLocked applies everything that became due by now.
// A penalty defers refills; its expiry returns the dispatcher to normal and refills the bucket in the same step.
// Otherwise the bucket is refilled once a point of the refill cadence (startedAt + k*refillInterval) has passed.
func (d *Dispatcher[I, O]) advanceLocked(now time.Time) transition {
	if !d.penaltyUntil.IsZero() {
		if now.Before(d.penaltyUntil) {
			return transition{}
		}
		d.penaltyUntil = time.Time{}
		d.refillLocked(now)
		return transition{kind: transitionPenaltyExpired, tokens: d.tokens}
	}
	if now.Before(d.nextRefillAt) {
		return transition{}
	}
	d.refillLocked(now)
	return transition{kind: transitionRefilled, tokens: d.tokens}
}

func (d *Dispatcher[I, O]) refillLocked(now time.Time) {
	d.tokens = d.capacity
	periods := now.Sub(d.startedAt) / d.refillInterval
	d.nextRefillAt = d.startedAt.Add((periods + 1) * d.refillInterval)
	close(d.refilled)
	d.refilled = make(chan struct{})
}

func (d *Dispatcher[I, O]) penalizedLocked(now time.Time) bool {
	return !d.penaltyUntil.IsZero() && now.Before(d.penaltyUntil)
}

// takeTokenLocked consumes a token if there is one. When the bucket is drained by this decrement
// and no penalty is active, a penalty of penaltyPeriod starts; penaltyUntil is returned non-zero in that case.
// A zero period gives a penalty that has already ended, so none is recorded.
// When no token is available, the returned channel is closed on the next refill.
func (d *Dispatcher[I, O]) takeTokenLocked(now time.Time) (
	ok bool, tokens int, penaltyUntil time.Time, wake <-chan struct{},
) {
	if d.tokens <= 0 {
		return false, 0, time.Time{}, d.refilled
	}
	d.tokens--
	if d.tokens == 0 && d.penaltyUntil.IsZero() {
		if until := now.Add(d.penaltyPeriod); until.After(now) {
			d.penaltyUntil = until
			penaltyUntil = until
		}
	}
	return true, d.tokens, penaltyUntil, nil
}

// nextWakeLocked returns when the state changes next by itself: the penalty expiry or the next refill.
// It must be called right after advanceLocked, so the result is always after now.
func (d *Dispatcher[I, O]) nextWakeLocked() time.Time {
	if !d.penaltyUntil.IsZero() {
		return d.penaltyUntil
	}
	return d.nextRefillAt
}

func (d *Dispatcher[I, O]) reportTransition(tr transition) {
	switch tr.kind {
	case transitionRefilled:
		d.metrics.SetTokens(d.name, tr.tokens)
		d.logger.Debug("bucket refilled", log.Int("tokens", tr.tokens))
	case transitionPenaltyExpired:
		d.metrics.SetTokens(d.name, tr.tokens)
		d.logger.Info("penalty expired, bucket refilled", log.Int("tokens", tr.tokens))
	}
}
