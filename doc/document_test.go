package doc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDocumentKeepsFieldOrder(t *testing.T) {
	d, err := Parse([]byte(`{"z":1,"a":"x","m":[1,2,{"k":null}],"b":{"y":true,"c":1.5}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m", "b"}, d.Keys())

	buf, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":"x","m":[1,2,{"k":null}],"b":{"y":true,"c":1.5}}`, string(buf))
}

func TestDocumentSetGetDelete(t *testing.T) {
	d := NewDocument()
	d.Set("name", String("a"))
	d.Set("age", Int(3))
	d.Set("name", String("b"))

	assert.Equal(t, []string{"name", "age"}, d.Keys())
	v, ok := d.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "b", v.String())

	assert.True(t, d.Delete("name"))
	assert.False(t, d.Delete("name"))
	assert.False(t, d.Has("name"))
	assert.Equal(t, 1, d.Len())

	var zero Document
	zero.Set("k", Bool(true))
	assert.True(t, zero.Has("k"))
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf(map[string]any{
		"b":    2,
		"a":    []any{"x", 1.5, nil, true},
		"uint": uint64(7),
	})
	require.NoError(t, err)

	obj, ok := v.AsObject()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "uint"}, obj.Keys())

	b, _ := obj.Get("b")
	i, ok := b.AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(2), i)

	a, _ := obj.Get("a")
	items, ok := a.AsArray()
	require.True(t, ok)
	assert.Equal(t, KindString, items[0].Kind())
	assert.Equal(t, KindNumber, items[1].Kind())
	assert.True(t, items[2].IsNull())

	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	p, err := ValueOf(point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1,"y":2}`, p.String())
}

func TestValueAsInt(t *testing.T) {
	i, ok := Float(3).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(3), i)

	_, ok = Float(3.5).AsInt()
	assert.False(t, ok)

	_, ok = String("3").AsInt()
	assert.False(t, ok)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int(1).Equal(Number("1.0")))
	assert.False(t, Int(1).Equal(String("1")))
	assert.True(t, Array(Int(1), Null()).Equal(Array(Int(1), Null())))
	assert.True(t, MustValueOf(map[string]any{"a": 1}).Equal(MustValueOf(map[string]any{"a": 1})))
}

func TestNumberValidation(t *testing.T) {
	for _, tc := range []struct {
		text  string
		valid bool
	}{
		{"1", true},
		{"-1.5e3", true},
		{"0.25", true},
		{"", true},
		{"abc", false},
		{"1a", false},
		{"01", false},
		{" 1", false},
		{"1 ", false},
		{"NaN", false},
		{"0x10", false},
		{"\"1\"", false},
	} {
		t.Run(tc.text, func(t *testing.T) {
			v, err := ParseNumber(tc.text)
			if !tc.valid {
				require.Error(t, err)
				assert.True(t, Number(json.Number(tc.text)).IsNull())
				_, err = ValueOf(json.Number(tc.text))
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KindNumber, v.Kind())
		})
	}

	d := NewDocument()
	d.Set("x", Number("abc"))
	buf, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"x":null}`, string(buf))
}

func TestValueInterface(t *testing.T) {
	d := MustFromMap(map[string]any{"id": 1, "score": 2.5, "tags": []any{"a"}, "n": nil})
	assert.Equal(t, map[string]any{
		"id":    int64(1),
		"score": 2.5,
		"tags":  []any{"a"},
		"n":     nil,
	}, d.ToMap())
}

func TestDocumentClone(t *testing.T) {
	d := MustFromMap(map[string]any{"nested": map[string]any{"a": 1}})
	c := d.Clone()

	nested, _ := c.Get("nested")
	obj, _ := nested.AsObject()
	obj.Set("a", Int(2))

	orig, _ := d.Get("nested")
	origObj, _ := orig.AsObject()
	a, _ := origObj.Get("a")
	assert.Equal(t, "1", a.String())
}

func TestParseArray(t *testing.T) {
	docs, err := ParseArray([]byte(`[{"id":1},null,{"id":2,"name":"b"}]`))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, 0, docs[1].Len())
	assert.Equal(t, []string{"id", "name"}, docs[2].Keys())

	_, err = ParseArray([]byte(`{"id":1}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`[1]`))
	assert.Error(t, err)
}

func TestDocumentMsgpack(t *testing.T) {
	d, err := Parse([]byte(`{"z":1,"a":"x","m":[1,2.5,{"k":null}],"b":{"y":true}}`))
	require.NoError(t, err)

	buf, err := msgpack.Marshal(d)
	require.NoError(t, err)

	out := NewDocument()
	require.NoError(t, msgpack.Unmarshal(buf, out))
	assert.Equal(t, []string{"z", "a", "m", "b"}, out.Keys())
	assert.True(t, d.Equal(out))
}

func TestDocumentLookup(t *testing.T) {
	d, err := Parse([]byte(`{"a":{"b":{"c":3}},"tags":["x","y"],"a.b":"flat"}`))
	require.NoError(t, err)

	v, ok := d.Lookup("a.b.c")
	assert.True(t, ok)
	assert.Equal(t, "3", v.String())

	v, ok = d.Lookup("tags.1")
	assert.True(t, ok)
	assert.Equal(t, "y", v.String())

	v, ok = d.Lookup("a.b")
	assert.True(t, ok)
	assert.Equal(t, "flat", v.String())

	_, ok = d.Lookup("tags.5")
	assert.False(t, ok)
	_, ok = d.Lookup("a.x.c")
	assert.False(t, ok)
}

func TestCompare(t *testing.T) {
	r, ok := Compare(Int(1), Float(1.5))
	assert.True(t, ok)
	assert.Equal(t, -1, r)

	r, ok = Compare(String("b"), String("a"))
	assert.True(t, ok)
	assert.Equal(t, 1, r)

	r, ok = Compare(Number("10"), Int(10))
	assert.True(t, ok)
	assert.Equal(t, 0, r)

	_, ok = Compare(Int(1), String("1"))
	assert.False(t, ok)
}
