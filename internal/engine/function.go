package engine

import (
	"errors"
	"fmt"

	"github.com/Shopify/go-lua"
)

// callbacksKey names the registry table holding retained script functions.
const callbacksKey = "taskloop.callbacks"

// ErrReleasedFunction is returned when calling a handle that was already used.
var ErrReleasedFunction = errors.New("function already released")

// Function is a one-shot handle to a script function.
//
// The function stays reachable from the Lua registry until Call or Release.
// Handles must only be used on the goroutine that owns the runtime.
type Function struct {
	rt  *Runtime
	ref int
}

// Call invokes the function with no arguments and releases it.
func (f Function) Call() error {
	if f.rt == nil {
		return ErrReleasedFunction
	}
	if _, ok := f.rt.refs[f.ref]; !ok {
		return ErrReleasedFunction
	}
	l := f.rt.l
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, callbacksKey)
	l.RawGetInt(-1, f.ref)
	f.Release()
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("call script function: %w", err)
	}
	return nil
}

// Release drops the registry reference without calling the function.
func (f Function) Release() {
	if f.rt == nil {
		return
	}
	if _, ok := f.rt.refs[f.ref]; !ok {
		return
	}
	delete(f.rt.refs, f.ref)

	l := f.rt.l
	l.Field(lua.RegistryIndex, callbacksKey)
	l.PushNil()
	l.RawSetInt(-2, f.ref)
	l.Pop(1)
}

// retain stores the function at index in the registry and returns a handle.
func (rt *Runtime) retain(l *lua.State, index int) Function {
	rt.nextRef++
	ref := rt.nextRef

	l.Field(lua.RegistryIndex, callbacksKey)
	l.PushValue(index)
	l.RawSetInt(-2, ref)
	l.Pop(1)

	rt.refs[ref] = struct{}{}
	return Function{rt: rt, ref: ref}
}

// PendingFunctions reports how many retained script functions are outstanding.
func (rt *Runtime) PendingFunctions() int {
	return len(rt.refs)
}
