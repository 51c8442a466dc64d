package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func evalString(t *testing.T, src string) string {
	t.Helper()
	c := testConfig()
	val, diags := parseExpr(t, src).Value(c.evalCtx)
	require.False(t, diags.HasErrors(), diags.Error())
	require.Equal(t, cty.String, val.Type())
	return val.AsString()
}

func TestFunctions(t *testing.T) {
	t.Run("string functions", func(t *testing.T) {
		assert.Equal(t, "HELLO", evalString(t, `upper("hello")`))
		assert.Equal(t, "a-b", evalString(t, `join("-", split(",", "a,b"))`))
		assert.Equal(t, "id-007", evalString(t, `format("id-%03d", 7)`))
	})

	t.Run("encoding functions", func(t *testing.T) {
		assert.Equal(t, "aGk=", evalString(t, `base64encode("hi")`))
		assert.Equal(t, `{"a":1}`, evalString(t, `jsonencode({a = 1})`))
		assert.Equal(t, "a%2Fb", evalString(t, `urlencode("a/b")`))
	})

	t.Run("hash functions", func(t *testing.T) {
		assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", evalString(t, `md5("hello")`))
	})

	t.Run("uuid", func(t *testing.T) {
		assert.Len(t, evalString(t, `uuidv4()`), 36)
	})

	t.Run("typeof", func(t *testing.T) {
		assert.Equal(t, "string", evalString(t, `typeof("x")`))
		assert.Equal(t, "number", evalString(t, `typeof(1)`))
	})

	t.Run("diff and patch", func(t *testing.T) {
		assert.Equal(t, "2", evalString(t, `tostring(patch({a = 1, b = 1}, diff({a = 1, b = 1}, {a = 1, b = 2})).b)`))
	})

	t.Run("patch requires maps", func(t *testing.T) {
		c := testConfig()
		_, diags := parseExpr(t, `patch("x", {})`).Value(c.evalCtx)
		assert.True(t, diags.HasErrors())
	})
}

func TestValueToBody(t *testing.T) {
	body, err := valueToBody(cty.StringVal("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", body)

	body, err = valueToBody(cty.NullVal(cty.String))
	require.NoError(t, err)
	assert.Equal(t, "", body)

	body, err = valueToBody(cty.ObjectVal(map[string]cty.Value{"n": cty.NumberIntVal(1)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, body)

	_, err = valueToBody(cty.UnknownVal(cty.String))
	require.Error(t, err)
}

