package storage

import (
	"context"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"modernc.org/sqlite"
)

// registerFunctions wires the custom scalar functions of spec.md §4.8:
// base64_encode, base64_decode, regexp, uuid, token, valid_json, not_allowed.
// modernc.org/sqlite registers scalar functions process-wide rather than
// per-connection, so registration happens once guarded by a sync.Once; the
// signing secret is fixed for the process lifetime so the first caller's
// value is authoritative.
var registerOnce sync.Once
var registerErr error

func registerFunctions(_ context.Context, _ any, secret []byte) error {
	registerOnce.Do(func() {
		registerErr = doRegister(secret)
	})
	return registerErr
}

func doRegister(secret []byte) error {
	if err := sqlite.RegisterDeterministicScalarFunction("base64_encode", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			b, err := argBytes(args[0])
			if err != nil {
				return nil, err
			}
			return base64.StdEncoding.EncodeToString(b), nil
		}); err != nil {
		return fmt.Errorf("register base64_encode: %w", err)
	}

	if err := sqlite.RegisterDeterministicScalarFunction("base64_decode", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("base64_decode: expected text argument")
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("base64_decode: %w", err)
			}
			return b, nil
		}); err != nil {
		return fmt.Errorf("register base64_decode: %w", err)
	}

	if err := sqlite.RegisterDeterministicScalarFunction("regexp", 2,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			pattern, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("regexp: pattern must be text")
			}
			text, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("regexp: subject must be text")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("regexp: %w", err)
			}
			if re.MatchString(text) {
				return int64(1), nil
			}
			return int64(0), nil
		}); err != nil {
		return fmt.Errorf("register regexp: %w", err)
	}

	if err := sqlite.RegisterScalarFunction("uuid", 0,
		func(_ *sqlite.FunctionContext, _ []driver.Value) (driver.Value, error) {
			return uuid.NewString(), nil
		}); err != nil {
		return fmt.Errorf("register uuid: %w", err)
	}

	if err := sqlite.RegisterScalarFunction("token", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			raw, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("token: claims must be a JSON text argument")
			}
			var claims jwt.MapClaims
			if err := json.Unmarshal([]byte(raw), &claims); err != nil {
				return nil, fmt.Errorf("token: invalid claims JSON: %w", err)
			}
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			signed, err := tok.SignedString(secret)
			if err != nil {
				return nil, fmt.Errorf("token: sign: %w", err)
			}
			return signed, nil
		}); err != nil {
		return fmt.Errorf("register token: %w", err)
	}

	if err := sqlite.RegisterDeterministicScalarFunction("valid_json", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			s, ok := args[0].(string)
			if !ok {
				return int64(0), nil
			}
			if !json.Valid([]byte(s)) {
				return int64(0), nil
			}
			return int64(1), nil
		}); err != nil {
		return fmt.Errorf("register valid_json: %w", err)
	}

	if err := sqlite.RegisterScalarFunction("not_allowed", -1,
		func(_ *sqlite.FunctionContext, _ []driver.Value) (driver.Value, error) {
			return nil, fmt.Errorf("not allowed")
		}); err != nil {
		return fmt.Errorf("register not_allowed: %w", err)
	}

	return nil
}

func argBytes(v driver.Value) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("expected blob/text argument, got %T", v)
	}
}
