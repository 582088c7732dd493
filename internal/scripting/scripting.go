// Package scripting runs stored JS functions inside a sandboxed ECMAScript
// runtime and marshals their result back to an HTTP response shape,
// implementing spec.md §4.2/§4.3.
//
// Grounded on go-mizu-mizu/blueprints/localflare's goja + goja_nodejs
// wiring: a pure-Go engine needs no cgo, keeping the module consistent with
// internal/storage's modernc.org/sqlite choice, and goja_nodejs already
// ships console/url/eventloop modules that cover most of the host-call
// surface spec.md §4.3 lists as "standard web semantics".
package scripting

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/url"

	"github.com/queryrun/server/internal/cache"
	"github.com/queryrun/server/internal/plugin"
	"github.com/queryrun/server/internal/storage"
)

// InvocationTimeout is the hard wall-clock budget per invocation (spec.md
// §4.2): when it expires while the function's code is still running, the
// runtime is interrupted and the caller reports 500. Invoke still returns
// only once the runtime's event loop has no pending timers.
const InvocationTimeout = 5 * time.Second

// Request is the serialised descriptor handed to a stored function's
// default export.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Response is the structure a function must return.
type Response struct {
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	CacheTTLMs int64             `json:"cacheTtlMs"`
}

// DBOpener opens (or reuses) the named user database for the duration of a
// host call; callers of Engine supply this so scripting never has to know
// the server's directory layout directly.
type DBOpener func(ctx context.Context, name string) (*storage.DB, error)

// Engine owns the pool of reusable JS runtimes and the host bindings they
// share (plugin gate, L1 cache, DB access).
type Engine struct {
	openDB     DBOpener
	pluginGate *plugin.Gate
	l1         *cache.L1
	secret     []byte

	pool chan *workerRuntime
}

type workerRuntime struct {
	loop     *eventloop.EventLoop
	registry *require.Registry
}

// NewEngine constructs an Engine. maxRuntimes bounds how many JS runtimes
// may exist concurrently; idle ones are pooled and reused the way spec.md
// §4.2 describes a per-OS-thread runtime being reused across requests on
// that thread — here approximated with a bounded pool rather than literal
// thread-local storage, since Go's goroutines aren't pinned to OS threads
// without extra machinery the rest of the server doesn't need.
func NewEngine(openDB DBOpener, pluginGate *plugin.Gate, l1 *cache.L1, secret []byte, maxRuntimes int) *Engine {
	if maxRuntimes <= 0 {
		maxRuntimes = 8
	}
	return &Engine{
		openDB:     openDB,
		pluginGate: pluginGate,
		l1:         l1,
		secret:     secret,
		pool:       make(chan *workerRuntime, maxRuntimes),
	}
}

func (e *Engine) acquire() *workerRuntime {
	select {
	case w := <-e.pool:
		return w
	default:
		registry := new(require.Registry)
		loop := eventloop.NewEventLoop(eventloop.WithRegistry(registry))
		return &workerRuntime{loop: loop, registry: registry}
	}
}

func (e *Engine) release(w *workerRuntime) {
	select {
	case e.pool <- w:
	default:
		w.loop.Stop()
	}
}

// Invoke loads source as a CommonJS module exporting a default async
// function, calls it with req, and returns its resolved Response. Errors
// (thrown exceptions, timeouts, syntax errors) are returned as plain errors
// for the caller to map to a 500 per spec.md §4.2.
func (e *Engine) Invoke(ctx context.Context, source string, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, InvocationTimeout)
	defer cancel()

	w := e.acquire()
	defer e.release(w)

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)

	w.loop.Run(func(vm *goja.Runtime) {
		stop := context.AfterFunc(ctx, func() {
			vm.Interrupt(fmt.Sprintf("script execution timed out after %s", InvocationTimeout))
		})
		defer func() {
			if !stop() {
				vm.ClearInterrupt()
			}
		}()

		console.Enable(vm)
		new(url.Module).Enable(vm)
		bindHost(vm, e, ctx)

		resp, err := runModule(vm, source, req)
		done <- result{resp, err}
	})

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("script execution timed out after %s", InvocationTimeout)
	}
}
