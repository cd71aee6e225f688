package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
)

// Typed adapts a function over a concrete input type to a Func. Values of
// any other type are rejected with an error naming both types.
func Typed[In any, Out any](fn func(In) (Out, error)) Func {
	return func(raw any) (any, error) {
		in, ok := raw.(In)
		if !ok {
			var zero In
			return nil, fmt.Errorf("transform expects %T, got %T", zero, raw)
		}
		return fn(in)
	}
}

// Struct returns a Func decoding a JSON object or urlencoded form into a T.
// Form values are strings, so string to number and bool conversions are
// applied. Field names are matched against `json` tags.
func Struct[T any]() Func {
	return func(raw any) (any, error) {
		var out T
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			TagName:          "json",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, fmt.Errorf("decode %T: %w", out, err)
		}
		return out, nil
	}
}

// JSON returns a Func that re-encodes the raw value and unmarshals it into a
// T, for types whose decoding relies on json.Unmarshaler.
func JSON[T any]() Func {
	return func(raw any) (any, error) {
		var out T
		data, err := toJSON(raw)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode %T: %w", out, err)
		}
		return out, nil
	}
}

func toJSON(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

// stringOf extracts a scalar string out of the shapes a raw value can take.
func stringOf(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("transform expects a scalar, got %T", raw)
	}
}

// Int parses the value as a base 10 int.
func Int(raw any) (any, error) {
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

// Float64 parses the value as a float64.
func Float64(raw any) (any, error) {
	if f, ok := raw.(float64); ok {
		return f, nil
	}
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Bool parses the value as a bool. "yes" and "on" count as true, "no" and
// "off" as false, in addition to what strconv.ParseBool accepts.
func Bool(raw any) (any, error) {
	if b, ok := raw.(bool); ok {
		return b, nil
	}
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// UUID parses the value as a uuid.UUID.
func UUID(raw any) (any, error) {
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	return uuid.Parse(strings.TrimSpace(s))
}

// Base64 decodes a standard base64 string into bytes.
func Base64(raw any) (any, error) {
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	return codec.DecodeBase64(s)
}

// Base62 decodes a base62 string into bytes.
func Base62(raw any) (any, error) {
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	return codec.DecodeBase62(s)
}

// Trim removes leading and trailing white space from a string value.
func Trim(raw any) (any, error) {
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(s), nil
}

// Lower lower-cases a string value.
func Lower(raw any) (any, error) {
	s, err := stringOf(raw)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

// Builtins returns a Set holding the builtin scalar transforms.
func Builtins() *Set {
	return NewSet().
		Register("int", Int).
		Register("float64", Float64).
		Register("float", Float64).
		Register("bool", Bool).
		Register("uuid", UUID).
		Register("base64", Base64).
		Register("base62", Base62).
		Register("trim", Trim).
		Register("lower", Lower)
}

// DefaultConfig returns a ConfigMap with a fresh builtin Set for every kind.
// Callers add their own transforms with Register on the returned sets.
func DefaultConfig() ConfigMap {
	cfg := make(ConfigMap, len(common.Kinds))
	for _, kind := range common.Kinds {
		cfg[kind] = Builtins()
	}
	return cfg
}
