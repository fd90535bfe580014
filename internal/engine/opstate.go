package engine

import (
	"context"
	"log"
	"reflect"
)

// OpState is the per-runtime resource bag shared by ops and middleware.
//
// Resources are keyed by their Go type, so each type holds at most one value.
type OpState struct {
	resources map[reflect.Type]any
	logger    *log.Logger
	ctx       context.Context
	err       error
}

func newOpState(logger *log.Logger) *OpState {
	return &OpState{
		resources: map[reflect.Type]any{},
		logger:    logger,
	}
}

// Put stores value in state, replacing any previous value of the same type.
func Put[T any](state *OpState, value T) {
	state.resources[reflect.TypeFor[T]()] = value
}

// Borrow returns the value of type T stored in state.
func Borrow[T any](state *OpState) (T, bool) {
	value, ok := state.resources[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := value.(T)
	return typed, ok
}

// Take removes and returns the value of type T stored in state.
func Take[T any](state *OpState) (T, bool) {
	value, ok := Borrow[T](state)
	if ok {
		delete(state.resources, reflect.TypeFor[T]())
	}
	return value, ok
}

// Logger returns the runtime logger.
func (s *OpState) Logger() *log.Logger {
	return s.logger
}

// Context returns the context of the tick in progress. Middleware that may
// run for a long time should stop once it is done.
func (s *OpState) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Fail records a terminal error. Only the first error is kept.
func (s *OpState) Fail(err error) {
	if err == nil || s.err != nil {
		return
	}
	s.err = Fatal(err)
}

// Err returns the terminal error, if any.
func (s *OpState) Err() error {
	return s.err
}
