package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	obj := NewObject(
		P("zeta", Int(1)),
		P("alpha", String("a")),
		P("mid", Bool(true)),
	)

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","mid":true,"zeta":1}`, string(data))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes to surrogates 0xD83D 0xDE00, which sort before U+FF61
	// in UTF-16 even though its UTF-8 encoding sorts after.
	obj := NewObject(
		P("\uff61", Int(1)),
		P("\U0001F600", Int(2)),
	)

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uff61\":1}", string(data))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical(String("a<b>&c"))
	require.NoError(t, err)
	assert.Equal(t, `"a<b>&c"`, string(data))
}

func TestMarshalCanonicalLineSeparatorsLiteral(t *testing.T) {
	data, err := MarshalCanonical(String("x\u2028y\u2029z"))
	require.NoError(t, err)
	assert.Equal(t, "\"x\u2028y\u2029z\"", string(data))
}

func TestMarshalCanonicalControlEscapes(t *testing.T) {
	data, err := MarshalCanonical(String("a\nb\t\"c\\\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\t\"c\\\u0001"`, string(data))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	data, err := MarshalCanonical(String("cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(data))
}

func TestMarshalCanonicalNested(t *testing.T) {
	obj := NewObject(
		P("list", List{Int(-3), String("x"), NewObject(P("b", Bool(false)), P("a", Int(0)))}),
	)

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"list":[-3,"x",{"a":0,"b":false}]}`, string(data))
}

func TestMarshalCanonicalRejectsNil(t *testing.T) {
	_, err := MarshalCanonical(NewObject(P("k", nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null is forbidden")
}

func TestUnmarshalValueRoundTrip(t *testing.T) {
	obj := NewObject(
		P("salience", Int(9007199254740993)),
		P("tags", List{String("a"), String("b")}),
		P("no_loop", Bool(true)),
	)

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)

	back, err := UnmarshalObject(data)
	require.NoError(t, err)
	assert.Equal(t, obj, back)
}

func TestUnmarshalValueRejectsFloatsAndNull(t *testing.T) {
	_, err := UnmarshalValue([]byte(`{"x":1.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = UnmarshalValue([]byte(`{"x":null}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null is forbidden")

	_, err = UnmarshalObject([]byte(`[1]`))
	require.Error(t, err)
}

func TestObjectCloneIsDeep(t *testing.T) {
	orig := NewObject(P("list", List{Int(1)}), P("obj", NewObject(P("k", String("v")))))
	clone := orig.Clone()

	clone["list"].(List)[0] = Int(2)
	clone["obj"].(Object)["k"] = String("changed")

	assert.Equal(t, Int(1), orig["list"].(List)[0])
	assert.Equal(t, String("v"), orig["obj"].(Object)["k"])
	assert.Nil(t, Object(nil).Clone())
}

func TestPlain(t *testing.T) {
	obj := NewObject(
		P("name", String("a")),
		P("n", Int(3)),
		P("tags", List{String("x"), Bool(false)}),
		P("nested", NewObject(P("k", Int(-1)))),
	)

	assert.Equal(t, map[string]any{
		"name":   "a",
		"n":      int64(3),
		"tags":   []any{"x", false},
		"nested": map[string]any{"k": int64(-1)},
	}, Plain(obj))
	assert.Nil(t, Plain(nil))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(NewObject(
		P("s", String("café")),
		P("l", List{Int(1), List(nil), Object(nil)}),
	)))
	assert.NoError(t, Validate(Object(nil)))

	err := Validate(NewObject(P("k", nil)))
	require.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), `$["k"]`)

	err = Validate(List{String("a"), NewObject(P("x", List{nil}))})
	require.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), `$[1]["x"][0]`)

	assert.ErrorIs(t, Validate(nil), ErrInvalidValue)
}
