package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"httprpc/internal/client"
	"httprpc/internal/scope"
)

// Runtime wraps goja VM with plugin-specific bindings
type Runtime struct {
	vm     *goja.Runtime
	logger zerolog.Logger
}

// NewRuntime creates a new Runtime with console bindings
func NewRuntime(logger zerolog.Logger) *Runtime {
	r := &Runtime{
		vm:     goja.New(),
		logger: logger,
	}
	r.setupConsole()
	return r
}

// setupConsole creates console.log, console.warn, console.error and console.debug
func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()

	bind := func(name string, event func() *zerolog.Event) {
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			event().Msgf("[plugin] %v", args)
			return goja.Undefined()
		})
	}
	bind("log", r.logger.Info)
	bind("warn", r.logger.Warn)
	bind("error", r.logger.Error)
	bind("debug", r.logger.Debug)

	_ = r.vm.Set("console", console)
}

// BindScope exposes the executing scope as the scope global
func (r *Runtime) BindScope(sc *scope.Scope) {
	obj := r.vm.NewObject()

	_ = obj.Set("read", func(name string) {
		sc.OnRead(scope.Named(name))
	})
	_ = obj.Set("changed", func(name string) {
		sc.OnChanged(scope.Named(name))
	})
	_ = obj.Set("service", sc.Conf().Service)
	_ = obj.Set("traceId", sc.Span().TraceID)
	_ = obj.Set("op", sc.Span().TraceOp)

	_ = r.vm.Set("scope", obj)
}

// BindCaller exposes rpc.call, which issues a call under sc and blocks until
// it settles. Remote failures are thrown as JavaScript exceptions.
func (r *Runtime) BindCaller(ctx context.Context, sc *scope.Scope, caller Caller) {
	obj := r.vm.NewObject()

	_ = obj.Set("call", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 3 {
			panic(r.vm.ToValue("rpc.call requires endpoint, port and method"))
		}

		req := client.Request{
			Endpoint: client.Endpoint{
				Name: call.Arguments[0].String(),
				Port: int(call.Arguments[1].ToInteger()),
			},
			Method: call.Arguments[2].String(),
		}
		if len(call.Arguments) > 3 {
			args, ok := call.Arguments[3].Export().([]any)
			if !ok {
				panic(r.vm.ToValue("rpc.call args must be an array"))
			}
			req.Args = args
		}

		result, err := caller.Call(sc, req).Wait(ctx)
		if err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("rpc call failed: %v", err)))
		}
		return r.vm.ToValue(result)
	})

	_ = r.vm.Set("rpc", obj)
}

// Run executes a compiled script in the runtime
func (r *Runtime) Run(program *goja.Program) error {
	_, err := r.vm.RunProgram(program)
	return scriptError(err)
}

// HasFunction returns true if the script defined a global function name
func (r *Runtime) HasFunction(name string) bool {
	_, ok := goja.AssertFunction(r.vm.Get(name))
	return ok
}

// CallFunction calls a JavaScript function by name and exports its result
func (r *Runtime) CallFunction(name string, args ...any) (any, error) {
	fn, ok := goja.AssertFunction(r.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("function %s not found", name)
	}

	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = r.vm.ToValue(arg)
	}

	v, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, scriptError(err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// Interrupt aborts the running script with reason
func (r *Runtime) Interrupt(reason error) {
	r.vm.Interrupt(reason)
}

// scriptError turns goja failures into plain errors carrying what the
// script threw
func scriptError(err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if reason, ok := interrupted.Value().(error); ok {
			return reason
		}
		return ErrTimeout
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return errors.New(ex.Value().String())
	}

	return err
}

// decodeArgs turns raw job arguments into values a script can receive
func decodeArgs(raw []json.RawMessage) ([]any, error) {
	args := make([]any, len(raw))
	for i, a := range raw {
		if err := json.Unmarshal(a, &args[i]); err != nil {
			return nil, fmt.Errorf("invalid argument %d: %w", i, err)
		}
	}
	return args, nil
}
