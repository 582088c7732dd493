package scripting

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/dop251/goja"
)

// exportDefaultPattern recognizes the one ESM construct stored functions
// are allowed to use (spec.md §8 scenario B's
// "export default async () => {...}"). goja executes plain CommonJS-style
// scripts, not ES modules, so this is rewritten to a module.exports
// assignment before evaluation rather than pulling in a full ESM loader.
var exportDefaultPattern = regexp.MustCompile(`export\s+default\s+`)

func toCommonJS(source string) string {
	return exportDefaultPattern.ReplaceAllString(source, "module.exports.default = ")
}

// moduleWrapper gives the stored source CommonJS-style module/exports
// globals, then drives its default export (an async function per spec.md
// §8 scenario B) to completion via __done, a Go-backed callback the
// wrapper's .then/.catch invoke. goja runs the pending promise reactions
// when the top-level call into the runtime returns, so __done has fired by
// the time fn returns unless the function waits on a timer or other
// event-loop task; runModule reports that case as an error.
const moduleWrapper = `
(function(__req) {
	var module = { exports: {} };
	var exports = module.exports;
	(function(module, exports) {
%s
	})(module, exports);

	var handler = (module.exports && module.exports.default) || module.exports;
	if (typeof handler !== "function") {
		__done(null, "Error: stored function has no default export function");
		return;
	}

	Promise.resolve().then(function() {
		return handler(__req);
	}).then(function(result) {
		__done(result, null);
	}, function(err) {
		__done(null, (err && err.message) ? ("Error: " + err.message) : ("Error: " + err));
	});
})
`

func runModule(vm *goja.Runtime, source string, req Request) (*Response, error) {
	var resp *Response
	var runErr error
	called := false

	if err := vm.Set("__done", func(result goja.Value, errMsg goja.Value) {
		called = true
		if errMsg != nil && !goja.IsNull(errMsg) && !goja.IsUndefined(errMsg) {
			runErr = fmt.Errorf("%s", errMsg.String())
			return
		}
		if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
			runErr = fmt.Errorf("Error: stored function returned no response")
			return
		}
		r, err := decodeResponse(result)
		if err != nil {
			runErr = err
			return
		}
		resp = r
	}); err != nil {
		return nil, fmt.Errorf("bind __done: %w", err)
	}

	wrapped := fmt.Sprintf(moduleWrapper, toCommonJS(source))
	fnVal, err := vm.RunString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("Error: %v", err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("Error: stored module did not evaluate to a function")
	}

	reqObj := vm.ToValue(req)
	if _, err := fn(goja.Undefined(), reqObj); err != nil {
		return nil, fmt.Errorf("Error: %v", err)
	}

	if !called {
		return nil, fmt.Errorf("Error: stored function did not resolve before the event loop went idle")
	}
	if runErr != nil {
		return nil, runErr
	}
	return resp, nil
}

func decodeResponse(v goja.Value) (*Response, error) {
	raw, err := json.Marshal(v.Export())
	if err != nil {
		return nil, fmt.Errorf("Error: response is not serialisable: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("Error: response shape mismatch: %v", err)
	}
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	return &resp, nil
}
