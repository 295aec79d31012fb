package service

import (
	"context"
)

type stepFunc func(ctx context.Context) error

// saga records the compensation of every forward step that succeeded so
// they can be undone newest first.
type saga struct {
	compensations []stepFunc
}

func newSaga() *saga {
	return &saga{}
}

// Do runs forward and, if it succeeds, remembers compensate.
func (s *saga) Do(ctx context.Context, forward, compensate stepFunc) error {
	if err := forward(ctx); err != nil {
		return err
	}
	s.compensations = append(s.compensations, compensate)
	return nil
}

func (s *saga) Len() int {
	return len(s.compensations)
}

// Compensate undoes every recorded step in reverse order. It keeps going
// past failures and returns all of them. Compensations run even if ctx has
// been cancelled.
func (s *saga) Compensate(ctx context.Context) []error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(s.compensations) - 1; i >= 0; i-- {
		if err := s.compensations[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.compensations = nil
	return errs
}
