// Package schedule lets scripts queue deferred work that the event loop runs.
//
// Scripts call Core.opSync("op_schedule_task", i) or
// Core.opSync("op_schedule_callback", fn). Each call pushes one task onto an
// unbounded FIFO queue; the extension's middleware drains that queue once per
// tick and reports whether anything ran, which keeps the loop spinning.
package schedule

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/louisbranch/taskloop/internal/engine"
	"github.com/louisbranch/taskloop/internal/taskqueue"
)

const (
	// ExtensionName identifies the extension in runtime errors and logs.
	ExtensionName = "schedule"
	// OpScheduleTask queues a greeting for an integer argument in [0, 255].
	OpScheduleTask = "op_schedule_task"
	// OpScheduleCallback queues a script function.
	OpScheduleCallback = "op_schedule_callback"
)

var errQueueMissing = errors.New("task queue not initialized")

// NewExtension returns the schedule extension. Greetings are written to out.
func NewExtension(out io.Writer) *engine.Extension {
	if out == nil {
		out = io.Discard
	}
	return &engine.Extension{
		Name: ExtensionName,
		Ops: []engine.Op{
			{Name: OpScheduleTask, Func: scheduleTask(out)},
			{Name: OpScheduleCallback, Func: scheduleCallback},
		},
		State:               initState,
		EventLoopMiddleware: drain,
	}
}

func initState(state *engine.OpState) error {
	sender, receiver := taskqueue.New()
	engine.Put(state, sender)
	engine.Put(state, receiver)
	return nil
}

func scheduleTask(out io.Writer) engine.OpFunc {
	return func(state *engine.OpState, args engine.Args) (any, error) {
		i, err := args.Integer(0)
		if err != nil {
			return nil, err
		}
		if i < 0 || i > math.MaxUint8 {
			return nil, fmt.Errorf("argument 1: %d out of range [0, %d]: %w", i, math.MaxUint8, engine.ErrInvalidArgument)
		}
		err = send(state, func() {
			fmt.Fprintf(out, "Hello, world! x%d\n", i)
		}, nil)
		return nil, err
	}
}

func scheduleCallback(state *engine.OpState, args engine.Args) (any, error) {
	fn, err := args.Function(0)
	if err != nil {
		return nil, err
	}
	err = send(state, func() {
		if err := fn.Call(); err != nil {
			state.Fail(fmt.Errorf("scheduled callback: %w", err))
		}
	}, fn.Release)
	if err != nil {
		fn.Release()
	}
	return nil, err
}

// send enqueues task. A missing or closed queue cannot recover, so the
// failure terminates the runtime. drop runs if the queue closes first.
func send(state *engine.OpState, task taskqueue.Task, drop func()) error {
	sender, ok := engine.Borrow[*taskqueue.Sender](state)
	if !ok {
		return engine.Fatal(errQueueMissing)
	}
	if err := sender.SendWithDrop(task, drop); err != nil {
		return engine.Fatal(fmt.Errorf("send task: %w", err))
	}
	return nil
}

// drain runs queued tasks until the queue is empty or the tick's context is
// done. Tasks queued by a running task are picked up in the same pass.
func drain(state *engine.OpState) bool {
	receiver, ok := engine.Borrow[*taskqueue.Receiver](state)
	if !ok {
		return false
	}
	ctx := state.Context()
	ran := false
	for state.Err() == nil && ctx.Err() == nil {
		task, ok := receiver.TryRecv()
		if !ok {
			break
		}
		task()
		ran = true
	}
	return ran
}
