package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type codecSample struct {
	Msg string
	N   int
}

func init() {
	gob.Register(codecSample{})
}

// mustRetryAsConcrete should detect the specific gob interface/concrete mismatch message.
func TestMustRetryAsConcrete_MatchingGobMessage(t *testing.T) {
	msg := "gob: value can only be decoded from remote interface type; received concrete type main.MyType"
	if !mustRetryAsConcrete(errors.New(msg)) {
		t.Fatalf("expected mustRetryAsConcrete to return true for gob interface/concrete mismatch message")
	}
}

func TestMustRetryAsConcrete_NonMatchingErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "unrelated error", err: errors.New("some other failure")},
		{name: "only interface substring", err: errors.New("gob: value can only be decoded from remote interface type")},
		{name: "only concrete substring", err: errors.New("gob: received concrete type main.MyType")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if mustRetryAsConcrete(tc.err) {
				t.Fatalf("expected mustRetryAsConcrete to return false for case %q", tc.name)
			}
		})
	}
}

func TestGobCodec_RoundTripsDynamicTypes(t *testing.T) {
	c := GobCodec{}

	for _, v := range []any{"hello", 42, 1.5, true, codecSample{Msg: "hi", N: 7}, map[string]any{"a": "b"}} {
		data, err := c.Encode(v)
		require.NoError(t, err)

		got, err := c.Decode(data)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestGobCodec_DecodesConcretePayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode("plain"))

	got, err := GobCodec{}.Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "plain", got)
}

func TestCodecs_NilIsEmpty(t *testing.T) {
	for _, c := range []Codec{GobCodec{}, JSONCodec{}} {
		data, err := c.Encode(nil)
		require.NoError(t, err)
		require.Empty(t, data)

		v, err := c.Decode(nil)
		require.NoError(t, err)
		require.Nil(t, v)
	}
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	c := JSONCodec{}

	data, err := c.Encode(map[string]any{"count": 3, "name": "n1"})
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"count": float64(3), "name": "n1"}, got)
}

func TestCodecFor(t *testing.T) {
	c, err := CodecFor("")
	require.NoError(t, err)
	require.Equal(t, "gob", c.Name())

	c, err = CodecFor("JSON")
	require.NoError(t, err)
	require.Equal(t, "json", c.Name())

	_, err = CodecFor("xml")
	require.Error(t, err)
}
