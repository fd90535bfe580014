package engine

import (
	"fmt"
	"math"

	"github.com/Shopify/go-lua"
)

// Args holds op arguments copied off the Lua stack.
//
// Values are nil, bool, float64, string, or Function.
type Args []any

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

func (a Args) at(index int) (any, error) {
	if index < 0 || index >= len(a) {
		return nil, fmt.Errorf("argument %d: %w", index+1, ErrMissingArgument)
	}
	return a[index], nil
}

// Number returns the argument at index as a float64.
func (a Args) Number(index int) (float64, error) {
	value, err := a.at(index)
	if err != nil {
		return 0, err
	}
	number, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("argument %d: expected number, got %s: %w", index+1, kindOf(value), ErrInvalidArgument)
	}
	return number, nil
}

// Integer returns the argument at index as an int. The number must be integral.
func (a Args) Integer(index int) (int, error) {
	number, err := a.Number(index)
	if err != nil {
		return 0, err
	}
	if number != math.Trunc(number) || math.IsInf(number, 0) || number >= math.MaxInt64 || number < math.MinInt64 {
		return 0, fmt.Errorf("argument %d: expected integer, got %v: %w", index+1, number, ErrInvalidArgument)
	}
	return int(number), nil
}

// String returns the argument at index as a string.
func (a Args) String(index int) (string, error) {
	value, err := a.at(index)
	if err != nil {
		return "", err
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %s: %w", index+1, kindOf(value), ErrInvalidArgument)
	}
	return text, nil
}

// Function takes the script function at index out of a.
//
// The caller owns the handle and must Call or Release it. Function handles
// left in a are released when the op returns.
func (a Args) Function(index int) (Function, error) {
	value, err := a.at(index)
	if err != nil {
		return Function{}, err
	}
	fn, ok := value.(Function)
	if !ok {
		return Function{}, fmt.Errorf("argument %d: expected function, got %s: %w", index+1, kindOf(value), ErrInvalidArgument)
	}
	a[index] = nil
	return fn, nil
}

// Release drops every function handle still held by a.
func (a Args) Release() {
	for _, value := range a {
		if fn, ok := value.(Function); ok {
			fn.Release()
		}
	}
}

func kindOf(value any) string {
	switch value.(type) {
	case nil:
		return "nil"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case Function:
		return "function"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// readArgs copies stack values from first to the top of the stack.
func (rt *Runtime) readArgs(l *lua.State, first int) (Args, error) {
	top := l.Top()
	if top < first {
		return Args{}, nil
	}
	args := make(Args, 0, top-first+1)
	for index := first; index <= top; index++ {
		switch l.TypeOf(index) {
		case lua.TypeNil, lua.TypeNone:
			args = append(args, nil)
		case lua.TypeBoolean:
			args = append(args, l.ToBoolean(index))
		case lua.TypeNumber:
			number, _ := l.ToNumber(index)
			args = append(args, number)
		case lua.TypeString:
			text, _ := l.ToString(index)
			args = append(args, text)
		case lua.TypeFunction:
			args = append(args, rt.retain(l, index))
		default:
			args.Release()
			return nil, fmt.Errorf("argument %d: unsupported type %s: %w", index-first+1, lua.TypeNameOf(l, index), ErrInvalidArgument)
		}
	}
	return args, nil
}

// pushResult pushes an op result and returns the number of Lua results.
func pushResult(l *lua.State, result any) (int, error) {
	switch v := result.(type) {
	case nil:
		return 0, nil
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushNumber(float64(v))
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	default:
		return 0, fmt.Errorf("unsupported op result %T", result)
	}
	return 1, nil
}
