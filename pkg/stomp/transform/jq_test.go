package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap/zaptest"
)

func TestJqTransform(t *testing.T) {
	t.Run("field extraction from JSON body", func(t *testing.T) {
		transform, err := JqTransform(".name", nil)
		require.NoError(t, err)

		result, cont := transform(&Message{Destination: "/topic/users", Payload: `{"name": "Alice", "age": 30}`})
		assert.True(t, cont)
		require.NotNil(t, result)
		assert.Equal(t, "/topic/users", result.Destination)
		assert.Equal(t, "Alice", result.Payload)
	})

	t.Run("plain string body", func(t *testing.T) {
		transform, err := JqTransform("ascii_upcase", nil)
		require.NoError(t, err)

		result, _ := transform(&Message{Payload: "hello"})
		require.NotNil(t, result)
		assert.Equal(t, "HELLO", result.Payload)
	})

	t.Run("multiple results collected", func(t *testing.T) {
		transform, err := JqTransform(".[] | select(.active) | .name", nil)
		require.NoError(t, err)

		result, _ := transform(&Message{Payload: `[{"name":"a","active":true},{"name":"b","active":false},{"name":"c","active":true}]`})
		require.NotNil(t, result)
		assert.Equal(t, []any{"a", "c"}, result.Payload)
	})

	t.Run("no results drops message", func(t *testing.T) {
		transform, err := JqTransform("select(.keep)", nil)
		require.NoError(t, err)

		result, cont := transform(&Message{Payload: `{"keep": false}`})
		assert.Nil(t, result)
		assert.False(t, cont)
	})

	t.Run("variables", func(t *testing.T) {
		transform, err := JqTransform("{dest: $destination, type: $headers[\"content-type\"], sensor: $fields.sensor}", nil)
		require.NoError(t, err)

		result, _ := transform(&Message{
			Destination: "/topic/kitchen",
			Header:      frame.NewHeader(frame.HdrContentType, "application/json"),
			Fields:      map[string]string{"sensor": "kitchen"},
			Payload:     "{}",
		})
		require.NotNil(t, result)
		assert.Equal(t, map[string]any{
			"dest":   "/topic/kitchen",
			"type":   "application/json",
			"sensor": "kitchen",
		}, result.Payload)
	})

	t.Run("cty payload", func(t *testing.T) {
		transform, err := JqTransform(".greeting", nil)
		require.NoError(t, err)

		result, _ := transform(&Message{Payload: cty.ObjectVal(map[string]cty.Value{
			"greeting": cty.StringVal("hi"),
		})})
		require.NotNil(t, result)
		assert.Equal(t, "hi", result.Payload)
	})

	t.Run("runtime error passes message through", func(t *testing.T) {
		transform, err := JqTransform(".a.b", zaptest.NewLogger(t))
		require.NoError(t, err)

		msg := &Message{Payload: `{"a": 5}`}
		result, cont := transform(msg)
		assert.True(t, cont)
		assert.Same(t, msg, result)
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := JqTransform(".[", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse JQ query")
	})

	t.Run("undefined variable", func(t *testing.T) {
		_, err := JqTransform("$topic", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to compile JQ query")
	})
}
