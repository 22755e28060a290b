/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"
)

// CompositeUnit starts and stops a group of units together.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new CompositeUnit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts every unit in its own goroutine and blocks until all Start calls return.
// When any unit reports a fatal error, the remaining units are stopped non-gracefully
// and a CompositeUnitError with all collected errors is sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	unitErrs := make([]chan error, len(cu.Units))
	failed := make(chan struct{}, len(cu.Units))

	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for i := range cu.Units {
		unitErrs[i] = make(chan error, 1)
		go func(u Unit, errCh chan error) {
			defer wg.Done()
			u.Start(errCh)
			if len(errCh) != 0 {
				failed <- struct{}{}
			}
		}(cu.Units[i], unitErrs[i])
	}

	allReturned := make(chan struct{})
	go func() {
		wg.Wait()
		close(allReturned)
	}()

	select {
	case <-allReturned:
		if len(failed) == 0 {
			return
		}
	case <-failed:
	}

	var errs []error
	if stopErr := cu.Stop(false); stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	<-allReturned
	for _, errCh := range unitErrs {
		select {
		case err := <-errCh:
			errs = append([]error{err}, errs...)
		default:
		}
	}
	fatalErr <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units concurrently and returns a CompositeUnitError if any of them failed to stop.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for i := range cu.Units {
		go func(i int) {
			defer wg.Done()
			errs[i] = cu.Units[i].Stop(gracefully)
		}(i)
	}
	wg.Wait()

	var res []error
	for _, err := range errs {
		if err != nil {
			res = append(res, err)
		}
	}
	if len(res) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: res}
}

// MustRegisterMetrics registers metrics of all units that implement MetricsRegisterer.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units that implement MetricsRegisterer.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError aggregates errors of several units.
type CompositeUnitError struct {
	UnitErrors []error
}

// Error implements error.
func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap allows errors.Is and errors.As to match any of the unit errors.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
