package receipt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_SetGet(t *testing.T) {
	ctx := Context{}.
		Set("b", String("one")).
		Set("a", Number(2)).
		Set("b", String("two")) // replace, not append

	require.Len(t, ctx, 2)

	v, ok := ctx.Get("b")
	require.True(t, ok)
	assert.Equal(t, "two", v.Str)

	_, ok = ctx.Get("missing")
	assert.False(t, ok)
}

func TestContext_MarshalPreservesInsertionOrder(t *testing.T) {
	ctx := Context{}.
		Set("zebra", String("z")).
		Set("alpha", Bool(true)).
		Set("count", Number(7))

	data, err := json.Marshal(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"zebra":"z","alpha":true,"count":7}`, string(data))
}

func TestContext_UnmarshalPreservesDocumentOrder(t *testing.T) {
	var ctx Context
	require.NoError(t, json.Unmarshal([]byte(`{"z":"last?","a":1,"m":true}`), &ctx))

	require.Len(t, ctx, 3)
	assert.Equal(t, "z", ctx[0].Key)
	assert.Equal(t, "a", ctx[1].Key)
	assert.Equal(t, "m", ctx[2].Key)
	assert.Equal(t, KindString, ctx[0].Value.Kind)
	assert.Equal(t, KindNumber, ctx[1].Value.Kind)
	assert.Equal(t, KindBool, ctx[2].Value.Kind)
}

func TestContext_UnmarshalRejectsNonPrimitives(t *testing.T) {
	cases := []string{
		`{"nested": {"k": "v"}}`,
		`{"list": [1, 2]}`,
		`{"nothing": null}`,
	}
	for _, body := range cases {
		var ctx Context
		err := json.Unmarshal([]byte(body), &ctx)
		var invalid *InvalidFieldError
		require.ErrorAs(t, err, &invalid, "input %s", body)
		assert.Equal(t, "additional_context", invalid.Field)
	}
}

func TestContext_UnmarshalRejectsNonObject(t *testing.T) {
	var ctx Context
	err := json.Unmarshal([]byte(`["not", "an", "object"]`), &ctx)
	require.Error(t, err)
}

func TestContext_RoundTrip(t *testing.T) {
	ctx := Context{}.Set("s", String("x")).Set("n", Number(1.25)).Set("b", Bool(false))

	data, err := json.Marshal(ctx)
	require.NoError(t, err)

	var back Context
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ctx, back)
}
