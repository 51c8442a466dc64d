package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// JqTransform creates a MessageTransformFunc that applies a JQ query to
// message payloads.
//
// String payloads holding JSON are decoded before the query runs; other
// strings are passed to the query as JSON strings. cty.Value payloads, as
// produced by configuration expressions, are converted with go2cty2go.
//
// The JQ query has access to the following variables:
//   - $destination: The message destination
//   - $headers: The message headers as an object
//   - $fields: Fields extracted by ExtractFields, or an empty object
//
// If the query produces multiple results, they are collected into an array.
// If it produces none, the message is dropped. Runtime errors are logged
// and the message passes through unchanged.
func JqTransform(jqQuery string, logger *zap.Logger) (MessageTransformFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", jqQuery, err)
	}

	compiledQuery, err := gojq.Compile(query, gojq.WithVariables([]string{"$destination", "$headers", "$fields"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", jqQuery, err)
	}

	return func(msg *Message) (*Message, bool) {
		var jqInput any

		switch payload := msg.Payload.(type) {
		case string:
			if err := json.Unmarshal([]byte(payload), &jqInput); err != nil {
				jqInput = payload
			}
		case []byte:
			if err := json.Unmarshal(payload, &jqInput); err != nil {
				jqInput = string(payload)
			}
		case cty.Value:
			var convErr error
			jqInput, convErr = go2cty2go.CtyToAny(payload)
			if convErr != nil {
				logger.Error("JQ transform: failed to convert cty.Value to Go type",
					zap.String("jq_query", jqQuery),
					zap.String("destination", msg.Destination),
					zap.Error(convErr))
				return msg, true
			}
		default:
			jqInput = payload
		}

		iter := compiledQuery.RunWithContext(context.Background(), jqInput,
			msg.Destination, stringMap(msg.Header.Map()), stringMap(msg.Fields))

		var results []any
		for {
			result, hasResult := iter.Next()
			if !hasResult {
				break
			}

			if execErr, ok := result.(error); ok {
				logger.Error("JQ transform: JQ execution error",
					zap.String("jq_query", jqQuery),
					zap.String("destination", msg.Destination),
					zap.Error(execErr))
				return msg, true
			}

			results = append(results, result)
		}

		if len(results) == 0 {
			return nil, false
		}

		if len(results) == 1 {
			return msg.withPayload(results[0]), true
		}
		return msg.withPayload(results), true
	}, nil
}

// stringMap converts to the map type gojq accepts as an object.
func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
