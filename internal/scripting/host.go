package scripting

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/queryrun/server/internal/authn"
	"github.com/queryrun/server/internal/cache"
	"github.com/queryrun/server/internal/storage"
)

// polyfills covers the host-call-surface entries spec.md §4.3 marks
// "standard web semantics" that goja_nodejs doesn't ship itself
// (TextEncoder/TextDecoder, Headers, AbortController/AbortSignal).
// console, url (URL/URLSearchParams) and the timer functions come from
// goja_nodejs proper; atob/btoa/crypto/sqlite/plugin/argon2/process are
// bound as Go functions below instead, since they need real I/O.
const polyfills = `
class TextEncoder {
	encode(s) {
		s = String(s === undefined ? "" : s);
		var bytes = [];
		for (var i = 0; i < s.length; i++) {
			var c = s.codePointAt(i);
			if (c < 0x80) { bytes.push(c); }
			else if (c < 0x800) { bytes.push(0xc0 | (c >> 6), 0x80 | (c & 0x3f)); }
			else if (c < 0x10000) { bytes.push(0xe0 | (c >> 12), 0x80 | ((c >> 6) & 0x3f), 0x80 | (c & 0x3f)); }
			else { bytes.push(0xf0 | (c >> 18), 0x80 | ((c >> 12) & 0x3f), 0x80 | ((c >> 6) & 0x3f), 0x80 | (c & 0x3f)); i++; }
		}
		return new Uint8Array(bytes);
	}
}
class TextDecoder {
	decode(bytes) {
		var arr = Array.from(bytes);
		var out = "";
		for (var i = 0; i < arr.length;) {
			var b0 = arr[i++];
			if (b0 < 0x80) { out += String.fromCharCode(b0); continue; }
			if (b0 < 0xe0) { var b1 = arr[i++]; out += String.fromCharCode(((b0 & 0x1f) << 6) | (b1 & 0x3f)); continue; }
			if (b0 < 0xf0) { var b1 = arr[i++], b2 = arr[i++]; out += String.fromCharCode(((b0 & 0xf) << 12) | ((b1 & 0x3f) << 6) | (b2 & 0x3f)); continue; }
			var b1 = arr[i++], b2 = arr[i++], b3 = arr[i++];
			out += String.fromCodePoint(((b0 & 0x7) << 18) | ((b1 & 0x3f) << 12) | ((b2 & 0x3f) << 6) | (b3 & 0x3f));
		}
		return out;
	}
}
class Headers {
	constructor(init) {
		this._map = {};
		if (init) { for (var k in init) { this.set(k, init[k]); } }
	}
	set(name, value) { this._map[String(name).toLowerCase()] = String(value); }
	get(name) { var v = this._map[String(name).toLowerCase()]; return v === undefined ? null : v; }
	has(name) { return String(name).toLowerCase() in this._map; }
	delete(name) { delete this._map[String(name).toLowerCase()]; }
	forEach(fn) { for (var k in this._map) { fn(this._map[k], k, this); } }
}
class AbortSignal {
	constructor() { this.aborted = false; this._listeners = []; }
	addEventListener(type, fn) { if (type === "abort") { this._listeners.push(fn); } }
	_fire() { this.aborted = true; this._listeners.forEach(function(fn) { fn(); }); }
}
class AbortController {
	constructor() { this.signal = new AbortSignal(); }
	abort() { this.signal._fire(); }
}
`

// bindHost wires the Go-backed portion of spec.md §4.3's host-call surface
// onto vm: sqlite.query/execute, plugin(), argon2.hash/verify, process.env,
// crypto.randomUUID, atob/btoa.
func bindHost(vm *goja.Runtime, e *Engine, ctx context.Context) {
	// The polyfill classes are top-level lexical declarations, so they are
	// installed once per runtime; a pooled runtime keeps them.
	if vm.Get("__polyfillsInstalled") == nil {
		if _, err := vm.RunString(polyfills); err != nil {
			panic(vm.NewGoError(fmt.Errorf("install polyfills: %w", err)))
		}
		_ = vm.Set("__polyfillsInstalled", true)
	}

	sqliteObj := vm.NewObject()
	_ = sqliteObj.Set("query", makeSQLiteQuery(vm, e, ctx))
	_ = sqliteObj.Set("execute", makeSQLiteExecute(vm, e, ctx))
	_ = vm.Set("sqlite", sqliteObj)

	_ = vm.Set("plugin", makePlugin(vm, e, ctx))

	argon2Obj := vm.NewObject()
	_ = argon2Obj.Set("hash", makeArgon2Hash(vm))
	_ = argon2Obj.Set("verify", makeArgon2Verify(vm))
	_ = vm.Set("argon2", argon2Obj)

	processObj := vm.NewObject()
	_ = processObj.Set("env", makeProcessEnv(vm))
	_ = vm.Set("process", processObj)

	cryptoObj := vm.NewObject()
	_ = cryptoObj.Set("randomUUID", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(uuid.NewString())
	})
	_ = vm.Set("crypto", cryptoObj)

	_ = vm.Set("atob", makeAtob(vm))
	_ = vm.Set("btoa", makeBtoa(vm))
}

func throwJS(vm *goja.Runtime, format string, args ...any) {
	panic(vm.ToValue(fmt.Sprintf(format, args...)))
}

func makeSQLiteQuery(vm *goja.Runtime, e *Engine, ctx context.Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		dbName := call.Argument(0).String()
		sqlText := call.Argument(1).String()
		paramsJSON := []byte(call.Argument(2).String())
		ttlMs := call.Argument(3).ToInteger()

		if e.l1 != nil && ttlMs > 0 && isSelect(sqlText) {
			key := cache.Key(dbName, sqlText, paramsJSON, ttlMs)
			if cached, ok := e.l1.Get(key); ok {
				return vm.ToValue(string(cached))
			}
			rows, err := queryDB(ctx, e, dbName, sqlText, paramsJSON)
			if err != nil {
				throwJS(vm, "%s", err.Error())
			}
			raw, _ := json.Marshal(rows)
			e.l1.Put(key, raw, time.Duration(ttlMs)*time.Millisecond)
			return vm.ToValue(string(raw))
		}

		rows, err := queryDB(ctx, e, dbName, sqlText, paramsJSON)
		if err != nil {
			throwJS(vm, "%s", err.Error())
		}
		raw, _ := json.Marshal(rows)
		return vm.ToValue(string(raw))
	}
}

func makeSQLiteExecute(vm *goja.Runtime, e *Engine, ctx context.Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		dbName := call.Argument(0).String()
		sqlText := call.Argument(1).String()
		paramsJSON := []byte(call.Argument(2).String())

		db, err := e.openDB(ctx, dbName)
		if err != nil {
			throwJS(vm, "Error: %s", err.Error())
		}
		result, err := storage.Execute(ctx, db, sqlText, paramsJSON)
		if err != nil {
			throwJS(vm, "%s", err.Error())
		}
		raw, _ := json.Marshal(result)
		return vm.ToValue(string(raw))
	}
}

func queryDB(ctx context.Context, e *Engine, dbName, sqlText string, paramsJSON []byte) ([]map[string]any, error) {
	db, err := e.openDB(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("Error: %v", err)
	}
	return storage.Query(ctx, db, sqlText, paramsJSON)
}

func makePlugin(vm *goja.Runtime, e *Engine, ctx context.Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if e.pluginGate == nil {
			throwJS(vm, "Error: plugin gate unavailable")
		}
		name := call.Argument(0).String()
		fnName := call.Argument(1).String()
		input := call.Argument(2).String()
		var opts []byte
		if len(call.Arguments) > 3 && !goja.IsUndefined(call.Argument(3)) {
			opts = []byte(call.Argument(3).String())
		}
		out, err := e.pluginGate.Call(ctx, name, fnName, input, opts)
		if err != nil {
			throwJS(vm, "Error: %s", err.Error())
		}
		return vm.ToValue(out)
	}
}

func makeArgon2Hash(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		password := call.Argument(0).String()
		hash, err := authn.HashPassword(password)
		if err != nil {
			throwJS(vm, "Error: %s", err.Error())
		}
		return vm.ToValue(hash)
	}
}

func makeArgon2Verify(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		password := call.Argument(0).String()
		hash := call.Argument(1).String()
		ok, err := authn.VerifyPassword(password, hash)
		if err != nil || !ok {
			throwJS(vm, "Error: The email or password is not correct.")
		}
		return vm.ToValue("")
	}
}

func makeProcessEnv(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		env := map[string]string{}
		for _, kv := range os.Environ() {
			for i := 0; i < len(kv); i++ {
				if kv[i] == '=' {
					env[kv[:i]] = kv[i+1:]
					break
				}
			}
		}
		raw, _ := json.Marshal(env)
		return vm.ToValue(string(raw))
	}
}

func makeAtob(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			throwJS(vm, "Error: malformed base64 input")
		}
		return vm.ToValue(string(b))
	}
}

func makeBtoa(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		return vm.ToValue(base64.StdEncoding.EncodeToString([]byte(s)))
	}
}

func isSelect(sqlText string) bool {
	for _, c := range sqlText {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return (c == 'S' || c == 's')
		}
	}
	return false
}
