package jsonvalue

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalKeepsMemberOrder(t *testing.T) {
	v := Object(
		Field("success", Bool(true)),
		Field("message", String("Story created")),
		Field("data", Object(
			Field("session_id", String("abc")),
			Field("count", Int(3)),
			Field("ratio", Number(0.25)),
			Field("tags", Strings([]string{"a", "b"})),
			Field("missing", Null()),
		)),
	)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t,
		`{"success":true,"message":"Story created","data":{"session_id":"abc","count":3,"ratio":0.25,"tags":["a","b"],"missing":null}}`,
		string(out))
}

func TestObjectRepeatedKeyKeepsFirstPosition(t *testing.T) {
	v := Object(Field("a", Int(1)), Field("b", Int(2)), Field("a", Int(3)))
	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"b":2}`, string(out))
}

func TestStringMapSortsKeys(t *testing.T) {
	out, err := json.Marshal(StringMap(map[string]string{"z": "1", "a": "2"}))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"2","z":"1"}`, string(out))

	out, err = json.Marshal(StringMap(nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestEmptyContainersEncodeAsEmpty(t *testing.T) {
	out, err := json.Marshal(Object(Field("items", Array()), Field("text", OptionalString(""))))
	require.NoError(t, err)
	assert.Equal(t, `{"items":[],"text":null}`, string(out))
}

func TestMarshalRejectsNonFiniteNumbers(t *testing.T) {
	_, err := json.Marshal(Array(Number(math.NaN())))
	assert.Error(t, err)
	_, err = json.Marshal(Number(math.Inf(1)))
	assert.Error(t, err)
}

func TestParsePreservesStructure(t *testing.T) {
	doc := `{"b":[1,2.5,"x",null,true],"a":{"nested":false},"escaped":"line\nbreak é"}`
	v, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())

	keys := []string{}
	for _, m := range v.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"b", "a", "escaped"}, keys)

	b, ok := v.Get("b")
	require.True(t, ok)
	require.Equal(t, 5, b.Len())
	n, ok := b.Items()[1].AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 2.5, n)
	assert.True(t, b.Items()[3].IsNull())

	s, _ := v.Get("escaped")
	text, ok := s.AsString()
	assert.True(t, ok)
	assert.Equal(t, "line\nbreak é", text)

	again, err := json.Marshal(v)
	require.NoError(t, err)
	reparsed, err := Parse(again)
	require.NoError(t, err)
	assert.True(t, v.Equal(reparsed))
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	for _, doc := range []string{``, `{`, `[1,`, `{"a":}`, `1 2`, `{"a":1}}`} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, "document %q", doc)
	}
}

func TestUnmarshalIntoStruct(t *testing.T) {
	var body struct {
		Payload Value `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"payload":{"k":[true]}}`), &body))

	k, ok := body.Payload.Get("k")
	require.True(t, ok)
	flag, ok := k.Items()[0].AsBool()
	assert.True(t, ok)
	assert.True(t, flag)
}

func TestAccessorsOnWrongKind(t *testing.T) {
	v := String("x")
	_, ok := v.AsNumber()
	assert.False(t, ok)
	assert.Nil(t, v.Items())
	assert.Nil(t, v.Members())
	_, ok = v.Get("x")
	assert.False(t, ok)
	assert.Equal(t, "string", v.Kind().String())
}
