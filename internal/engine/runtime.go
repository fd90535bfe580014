package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/louisbranch/taskloop/internal/engine"

// coreGlobal is the script-visible table exposing op dispatch.
const coreGlobal = "Core"

// OpFunc handles one op invocation. A non-nil result is returned to the script.
type OpFunc func(state *OpState, args Args) (any, error)

// Op binds a script-visible name to a handler.
type Op struct {
	Name string
	Func OpFunc
}

// Extension groups ops, state setup, and an event-loop hook.
type Extension struct {
	Name string
	Ops  []Op
	// State runs once during New, before any script executes.
	State func(state *OpState) error
	// EventLoopMiddleware runs once per tick and reports whether it did work.
	EventLoopMiddleware func(state *OpState) bool
}

// Options configures a Runtime.
type Options struct {
	Extensions []*Extension
	Logger     *log.Logger
	Verbose    bool
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

type middleware struct {
	extension string
	fn        func(state *OpState) bool
}

// Runtime owns a Lua state, the registered ops, and the event loop.
type Runtime struct {
	l          *lua.State
	state      *OpState
	ops        map[string]OpFunc
	middleware []middleware
	refs       map[int]struct{}
	nextRef    int
	tracer     trace.Tracer
	logger     *log.Logger
	verbose    bool
	ticks      uint64
}

// New builds a runtime and initializes every extension in order.
func New(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	provider := opts.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	rt := &Runtime{
		l:       lua.NewState(),
		state:   newOpState(logger),
		ops:     map[string]OpFunc{},
		refs:    map[int]struct{}{},
		tracer:  provider.Tracer(instrumentationName),
		logger:  logger,
		verbose: opts.Verbose,
	}
	lua.OpenLibraries(rt.l)
	rt.l.NewTable()
	rt.l.SetField(lua.RegistryIndex, callbacksKey)

	for _, ext := range opts.Extensions {
		if ext == nil {
			return nil, errors.New("extension is required")
		}
		if err := rt.register(ext); err != nil {
			return nil, fmt.Errorf("extension %s: %w", ext.Name, err)
		}
	}
	rt.installCore()
	return rt, nil
}

func (rt *Runtime) register(ext *Extension) error {
	for _, op := range ext.Ops {
		name := strings.TrimSpace(op.Name)
		if name == "" {
			return errors.New("op name is required")
		}
		if op.Func == nil {
			return fmt.Errorf("op %s: handler is required", name)
		}
		if _, exists := rt.ops[name]; exists {
			return fmt.Errorf("op %s: %w", name, ErrDuplicateOp)
		}
		rt.ops[name] = op.Func
	}
	if ext.State != nil {
		if err := ext.State(rt.state); err != nil {
			return fmt.Errorf("init state: %w", err)
		}
	}
	if ext.EventLoopMiddleware != nil {
		rt.middleware = append(rt.middleware, middleware{extension: ext.Name, fn: ext.EventLoopMiddleware})
	}
	rt.logf("extension registered: %s (%d ops)", ext.Name, len(ext.Ops))
	return nil
}

func (rt *Runtime) installCore() {
	rt.l.NewTable()
	lua.SetFunctions(rt.l, []lua.RegistryFunction{
		{Name: "opSync", Function: rt.opSync},
		{Name: "ops", Function: rt.listOps},
	}, 0)
	rt.l.SetGlobal(coreGlobal)
}

// OpState returns the shared resource bag.
func (rt *Runtime) OpState() *OpState {
	return rt.state
}

// OpNames returns the registered op names in sorted order.
func (rt *Runtime) OpNames() []string {
	names := make([]string, 0, len(rt.ops))
	for name := range rt.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ticks reports how many event-loop passes have run.
func (rt *Runtime) Ticks() uint64 {
	return rt.ticks
}

// ExecuteScript runs source as a chunk called name.
func (rt *Runtime) ExecuteScript(ctx context.Context, name, source string) error {
	if err := rt.ready(ctx); err != nil {
		return err
	}
	top := rt.l.Top()
	defer rt.l.SetTop(top)

	if err := lua.LoadBuffer(rt.l, source, name, ""); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return rt.call(name)
}

// ExecuteFile runs the script stored at path.
func (rt *Runtime) ExecuteFile(ctx context.Context, path string) error {
	if err := rt.ready(ctx); err != nil {
		return err
	}
	top := rt.l.Top()
	defer rt.l.SetTop(top)

	if err := lua.LoadFile(rt.l, path, ""); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return rt.call(path)
}

func (rt *Runtime) ready(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return rt.state.Err()
}

func (rt *Runtime) call(name string) error {
	err := rt.l.ProtectedCall(0, 0, 0)
	// A fatal op error wins over whatever the script did with it.
	if fatal := rt.state.Err(); fatal != nil {
		return fatal
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// Tick runs every middleware once and reports whether any did work.
func (rt *Runtime) Tick(ctx context.Context) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := rt.state.Err(); err != nil {
		return false, err
	}
	rt.ticks++
	tickCtx, span := rt.tracer.Start(ctx, "engine.tick", trace.WithAttributes(
		attribute.Int64("engine.tick", int64(rt.ticks)),
	))
	defer span.End()
	rt.state.ctx = tickCtx
	defer func() { rt.state.ctx = nil }()

	work := false
	for _, mw := range rt.middleware {
		if mw.fn(rt.state) {
			work = true
		}
		if err := rt.state.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, fmt.Errorf("middleware %s: %w", mw.extension, err)
		}
	}
	span.SetAttributes(attribute.Bool("engine.tick.work", work))
	return work, nil
}

// RunEventLoop ticks until a pass does no work, ctx is done, or the runtime fails.
func (rt *Runtime) RunEventLoop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := rt.tracer.Start(ctx, "engine.run_event_loop")
	defer span.End()

	start := rt.ticks
	for {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		work, err := rt.Tick(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if !work {
			span.SetAttributes(attribute.Int64("engine.ticks", int64(rt.ticks-start)))
			rt.logf("event loop idle after %d ticks", rt.ticks-start)
			return nil
		}
	}
}

// opSync implements Core.opSync(name, ...).
func (rt *Runtime) opSync(l *lua.State) int {
	name := lua.CheckString(l, 1)
	if err := rt.state.Err(); err != nil {
		lua.Errorf(l, "%s", err.Error())
		return 0
	}
	handler, ok := rt.ops[name]
	if !ok {
		lua.Errorf(l, "%s: %s", ErrUnknownOp.Error(), name)
		return 0
	}
	args, err := rt.readArgs(l, 2)
	if err != nil {
		lua.Errorf(l, "%s: %s", name, err.Error())
		return 0
	}

	result, err := handler(rt.state, args)
	args.Release()
	if err != nil {
		if IsFatal(err) {
			rt.state.Fail(fmt.Errorf("op %s: %w", name, err))
		}
		lua.Errorf(l, "%s: %s", name, err.Error())
		return 0
	}
	count, err := pushResult(l, result)
	if err != nil {
		lua.Errorf(l, "%s: %s", name, err.Error())
		return 0
	}
	return count
}

// listOps implements Core.ops().
func (rt *Runtime) listOps(l *lua.State) int {
	names := rt.OpNames()
	l.CreateTable(len(names), 0)
	for i, name := range names {
		l.PushString(name)
		l.RawSetInt(-2, i+1)
	}
	return 1
}

func (rt *Runtime) logf(format string, args ...any) {
	if !rt.verbose || rt.logger == nil {
		return
	}
	rt.logger.Printf(format, args...)
}
