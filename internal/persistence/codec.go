package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/bytedance/sonic"
)

// Codec turns context values into bytes for stores that cannot hold Go
// values directly.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

func init() {
	// Containers produced by JSON-ish payloads travel inside interfaces.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// CodecFor returns the codec registered under name. An empty name selects gob.
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "gob":
		return GobCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// GobCodec serializes values with encoding/gob, boxed as interface values so
// they decode back into their dynamic type. Custom types must be registered
// with gob.Register by the caller.
type GobCodec struct{}

func (GobCodec) Name() string { return "gob" }

func (GobCodec) Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	iv := v
	if err := gob.NewEncoder(&buf).Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var iv any
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv)
	if err == nil {
		return iv, nil
	}
	if !mustRetryAsConcrete(err) {
		return nil, err
	}

	// Payload was written as a concrete value by another producer.
	if v, ok := decodeCommonConcrete(data); ok {
		return v, nil
	}
	return nil, errors.New("gob: unable to decode context value")
}

func decodeCommonConcrete(data []byte) (any, bool) {
	candidates := []any{
		new(string), new([]byte), new(int), new(int64), new(float64), new(bool),
		new(map[string]any), new([]any), new([]string), new([]int),
	}
	for _, c := range candidates {
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(c); err == nil {
			return reflect.ValueOf(c).Elem().Interface(), true
		}
	}
	return nil, false
}

func mustRetryAsConcrete(err error) bool {
	// Heuristic: detect the specific gob message for interface-vs-concrete mismatch
	s := err.Error()
	return strings.Contains(s, "can only be decoded from remote interface") &&
		strings.Contains(s, "received concrete type")
}

// JSONCodec serializes values as JSON using sonic. Numbers decode as float64
// and objects as map[string]any.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return sonic.ConfigStd.Marshal(v)
}

func (JSONCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := sonic.ConfigStd.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
