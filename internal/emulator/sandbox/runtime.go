package sandbox

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
)

// ErrClosed is returned by a runtime after Close.
var ErrClosed = errors.New("runtime closed")

// Runtime is one browsing context's script engine. It is safe for concurrent
// use; calls are serialized.
type Runtime struct {
	vm     *goja.Runtime
	cfg    Config
	dom    *DOM
	host   Host
	logger *logging.Logger
	mu     sync.Mutex

	console   []LogEntry
	consoleMu sync.Mutex
}

// New creates a runtime for dom hosted by host.
func New(cfg Config, dom *DOM, host Host, logger *logging.Logger) (*Runtime, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	r := &Runtime{
		vm:     goja.New(),
		cfg:    cfg,
		dom:    dom,
		host:   host,
		logger: logging.OrNop(logger),
	}
	r.vm.SetMaxCallStackSize(1024)

	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load runs the page's inline scripts in document order. A throwing script
// is logged and does not stop the ones after it.
func (r *Runtime) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}
	for i, script := range r.dom.InlineScripts() {
		if _, err := r.run(ctx, script); err != nil {
			var scriptErr *ScriptError
			if !errors.As(err, &scriptErr) {
				return err
			}
			r.record("error", scriptErr.Message)
			r.logger.Debug("page script failed", zap.Int("script", i), zap.String("error", scriptErr.Message))
		}
	}
	return nil
}

// Call runs body as a function with args and returns its JSON-decoded
// return value. Exceptions surface as *ScriptError.
func (r *Runtime) Call(ctx context.Context, body string, args []any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrClosed
	}
	if err := r.vm.Set("__wdArgs", r.vm.NewArray(args...)); err != nil {
		return nil, fmt.Errorf("set arguments: %w", err)
	}

	val, err := r.run(ctx, "JSON.stringify((function() {\n"+body+"\n}).apply(window, __wdArgs));")
	if err != nil {
		return nil, err
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}

	var out any
	if err := sonic.UnmarshalString(val.String(), &out); err != nil {
		return nil, fmt.Errorf("decode script result: %w", err)
	}
	return out, nil
}

// run executes src under the configured timeout. Caller holds r.mu.
func (r *Runtime) run(ctx context.Context, src string) (goja.Value, error) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		timer := time.NewTimer(r.cfg.Timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			r.vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := r.vm.RunString(src)
	close(done)
	<-exited
	r.vm.ClearInterrupt()

	if err == nil {
		return val, nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return nil, cause
		}
		return nil, ErrTimeout
	}

	var exception *goja.Exception
	if errors.As(err, &exception) && exception.Value() != nil {
		return nil, &ScriptError{Message: exception.Value().String()}
	}
	return nil, &ScriptError{Message: err.Error()}
}

// Console returns the console output so far.
func (r *Runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry{}, r.console...)
}

// Close releases the VM.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	return nil
}

func (r *Runtime) setupGlobals() error {
	vm := r.vm
	global := vm.GlobalObject()

	// window and self are the global object, as in a browser.
	if err := vm.Set("window", global); err != nil {
		return err
	}
	if err := vm.Set("self", global); err != nil {
		return err
	}

	location := vm.NewObject()
	_ = location.Set("href", r.host.Location())
	_ = location.Set("toString", func(goja.FunctionCall) goja.Value { return vm.ToValue(r.host.Location()) })
	_ = vm.Set("location", location)

	_ = vm.Set("open", func(call goja.FunctionCall) goja.Value {
		url := r.host.Location()
		if arg := call.Argument(0); !goja.IsUndefined(arg) && arg.String() != "" {
			url = arg.String()
		}
		name := ""
		if arg := call.Argument(1); !goja.IsUndefined(arg) {
			name = arg.String()
		}
		r.host.Open(url, name)
		return goja.Null()
	})

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, r.makeConsoleFunc(level))
	}
	_ = vm.Set("console", console)

	// Timers are inert: nothing in a probe waits on them.
	inert := func(goja.FunctionCall) goja.Value { return vm.ToValue(0) }
	_ = vm.Set("setTimeout", inert)
	_ = vm.Set("setInterval", inert)
	_ = vm.Set("clearTimeout", inert)
	_ = vm.Set("clearInterval", inert)

	_ = vm.Set("document", r.makeDocument())

	if r.cfg.NodeIntegration {
		r.exposeNode()
	} else {
		_ = vm.Set("require", goja.Undefined())
		_ = vm.Set("process", goja.Undefined())
		_ = vm.Set("module", goja.Undefined())
		_ = vm.Set("exports", goja.Undefined())
	}

	if !r.cfg.AllowEval {
		return r.blockEval()
	}
	return nil
}

// blockEval replaces eval and the Function constructor with functions that
// throw EvalError. The replacements are script functions so that both calls
// and new expressions reach the throw.
func (r *Runtime) blockEval() error {
	vm := r.vm
	factory, err := vm.RunString(`(function (msg) { return function () { throw new EvalError(msg); }; })`)
	if err != nil {
		return fmt.Errorf("compile eval guard: %w", err)
	}
	makeGuard, ok := goja.AssertFunction(factory)
	if !ok {
		return fmt.Errorf("eval guard is not a function")
	}

	refuse := func(what string) (goja.Value, error) {
		msg := fmt.Sprintf("Refused to evaluate a string as JavaScript because 'unsafe-eval' is not allowed (%s)", what)
		return makeGuard(goja.Undefined(), vm.ToValue(msg))
	}

	guardFunction, err := refuse("Function")
	if err != nil {
		return err
	}
	guardEval, err := refuse("eval")
	if err != nil {
		return err
	}

	proto := vm.Get("Function").ToObject(vm).Get("prototype").ToObject(vm)
	if err := proto.Set("constructor", guardFunction); err != nil {
		return fmt.Errorf("block Function constructor: %w", err)
	}
	if err := vm.Set("Function", guardFunction); err != nil {
		return err
	}
	return vm.Set("eval", guardEval)
}

// nodeModules are the modules require resolves in a node-enabled context.
var nodeModules = []string{"child_process", "fs", "os", "path", "electron"}

func (r *Runtime) exposeNode() {
	vm := r.vm
	modules := make(map[string]*goja.Object, len(nodeModules))
	for _, name := range nodeModules {
		mod := vm.NewObject()
		_ = mod.Set("__module", name)
		modules[name] = mod
	}
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = modules["child_process"].Set("exec", noop)
	_ = modules["child_process"].Set("spawn", noop)
	_ = modules["fs"].Set("readFileSync", noop)

	_ = vm.Set("require", func(call goja.FunctionCall) goja.Value {
		name := strings.TrimPrefix(call.Argument(0).String(), "node:")
		if mod, ok := modules[name]; ok {
			return mod
		}
		panic(vm.NewGoError(fmt.Errorf("Cannot find module '%s'", name)))
	})

	process := vm.NewObject()
	_ = process.Set("type", "renderer")
	_ = process.Set("platform", runtime.GOOS)
	_ = process.Set("versions", map[string]any{"node": "emulated", "electron": "emulated"})
	_ = vm.Set("process", process)
	_ = vm.Set("module", vm.NewObject())
	_ = vm.Set("exports", vm.NewObject())
}

func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		r.record(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (r *Runtime) record(level, msg string) {
	r.consoleMu.Lock()
	r.console = append(r.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
	r.consoleMu.Unlock()
}

func (r *Runtime) makeDocument() *goja.Object {
	vm := r.vm
	document := vm.NewObject()
	_ = document.Set("title", r.dom.Title())
	_ = document.Set("URL", r.host.Location())

	query := func(selector string) []*html.Node {
		nodes, err := r.dom.QueryCSS(selector)
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return nodes
	}

	_ = document.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		nodes := query(call.Argument(0).String())
		if len(nodes) == 0 {
			return goja.Null()
		}
		return r.element(nodes[0])
	})
	_ = document.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		nodes := query(call.Argument(0).String())
		items := make([]any, 0, len(nodes))
		for _, n := range nodes {
			items = append(items, r.element(n))
		}
		return vm.NewArray(items...)
	})
	_ = document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		nodes := query("#" + call.Argument(0).String())
		if len(nodes) == 0 {
			return goja.Null()
		}
		return r.element(nodes[0])
	})
	return document
}

// element builds a read-only proxy for n.
func (r *Runtime) element(n *html.Node) *goja.Object {
	vm := r.vm
	el := vm.NewObject()
	id, _ := Attribute(n, "id")
	class, _ := Attribute(n, "class")
	_ = el.Set("tagName", strings.ToUpper(n.Data))
	_ = el.Set("id", id)
	_ = el.Set("className", class)
	_ = el.Set("textContent", Text(n))
	_ = el.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := Attribute(n, call.Argument(0).String()); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = el.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := Attribute(n, call.Argument(0).String())
		return vm.ToValue(ok)
	})
	return el
}
