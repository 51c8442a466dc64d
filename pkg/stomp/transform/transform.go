package transform

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/amir-yaghoubi/mqttpattern"
	"github.com/tsarna/stompws/pkg/stomp/frame"
)

// Message is a received STOMP message on its way to output. Payload starts
// out as the frame body and may be replaced by transforms.
type Message struct {
	Destination  string
	Subscription string
	Header       *frame.Header
	Payload      any
	// Fields holds values extracted from the destination by ExtractFields.
	Fields map[string]string
}

// FromFrame creates a Message from a received MESSAGE frame.
func FromFrame(m frame.Message) *Message {
	return &Message{
		Destination:  m.Header.Value(frame.HdrDestination),
		Subscription: m.Header.Value(frame.HdrSubscription),
		Header:       m.Header,
		Payload:      m.Body,
	}
}

func (m *Message) withPayload(payload any) *Message {
	out := *m
	out.Payload = payload
	return &out
}

// String renders the payload for output. Strings are returned as they are,
// anything else is encoded as JSON.
func (m *Message) String() string {
	switch p := m.Payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// MessageTransformFunc transforms a message before it is output.
//
// Returns:
//   - *Message: The transformed message (nil to drop the message)
//   - bool: Whether to continue calling subsequent transform functions (ignored if msg is nil)
type MessageTransformFunc func(msg *Message) (*Message, bool)

// DropDestinationPattern returns a MessageTransformFunc that drops messages
// whose destinations match the given MQTT-style pattern.
//
// Pattern examples:
//   - "/topic/+" drops "/topic/a" but not "/topic/a/b"
//   - "/queue/#" drops everything under "/queue/"
func DropDestinationPattern(pattern string) MessageTransformFunc {
	return func(msg *Message) (*Message, bool) {
		if mqttpattern.Matches(pattern, msg.Destination) {
			return nil, false
		}
		return msg, true
	}
}

// KeepDestinationPattern returns a MessageTransformFunc that drops messages
// whose destinations do not match the given MQTT-style pattern.
func KeepDestinationPattern(pattern string) MessageTransformFunc {
	return func(msg *Message) (*Message, bool) {
		if !mqttpattern.Matches(pattern, msg.Destination) {
			return nil, false
		}
		return msg, true
	}
}

// ExtractFields returns a MessageTransformFunc that stores the named
// wildcards of pattern matched against the destination in msg.Fields.
// Messages that don't match pass through unchanged.
//
// Example:
//
//	ExtractFields("/topic/+sensor/temp")
//	// "/topic/kitchen/temp" gives {"sensor": "kitchen"}
func ExtractFields(pattern string) MessageTransformFunc {
	return func(msg *Message) (*Message, bool) {
		if !mqttpattern.HasExtractions(pattern) || !mqttpattern.Matches(pattern, msg.Destination) {
			return msg, true
		}

		out := *msg
		out.Fields = mqttpattern.Extract(pattern, msg.Destination)
		return &out, true
	}
}

// AddDestinationPrefix returns a MessageTransformFunc that adds a prefix
// to message destinations.
func AddDestinationPrefix(prefix string) MessageTransformFunc {
	return func(msg *Message) (*Message, bool) {
		out := *msg
		out.Destination = prefix + msg.Destination
		return &out, true
	}
}

// StripDestinationPrefix returns a MessageTransformFunc that removes a
// prefix from message destinations that have it.
func StripDestinationPrefix(prefix string) MessageTransformFunc {
	return func(msg *Message) (*Message, bool) {
		if !strings.HasPrefix(msg.Destination, prefix) {
			return msg, true
		}
		out := *msg
		out.Destination = strings.TrimPrefix(msg.Destination, prefix)
		return &out, true
	}
}

// DecodeJSON returns a MessageTransformFunc that replaces string payloads
// holding valid JSON with the decoded value. Other payloads pass through.
func DecodeJSON() MessageTransformFunc {
	return func(msg *Message) (*Message, bool) {
		s, ok := msg.Payload.(string)
		if !ok {
			return msg, true
		}

		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return msg, true
		}
		return msg.withPayload(decoded), true
	}
}

// RateLimitByDestination returns a MessageTransformFunc that passes at most
// one message per destination every minInterval.
func RateLimitByDestination(minInterval time.Duration) MessageTransformFunc {
	var mu sync.Mutex
	lastSent := make(map[string]time.Time)

	return func(msg *Message) (*Message, bool) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if last, exists := lastSent[msg.Destination]; exists {
			if now.Sub(last) < minInterval {
				return nil, false
			}
		}
		lastSent[msg.Destination] = now
		return msg, true
	}
}

// ChainTransforms combines multiple MessageTransformFunc into a single function.
func ChainTransforms(transforms ...MessageTransformFunc) MessageTransformFunc {
	return func(msg *Message) (*Message, bool) {
		current := msg
		for _, transform := range transforms {
			if current == nil {
				return nil, true
			}

			transformed, continueProcessing := transform(current)
			current = transformed

			if current == nil || !continueProcessing {
				return current, continueProcessing
			}
		}
		return current, true
	}
}

// ApplyTransforms runs msg through transforms in order and returns the
// result, or nil if a transform dropped it.
func ApplyTransforms(msg *Message, transforms []MessageTransformFunc) *Message {
	if len(transforms) == 0 {
		return msg
	}
	out, _ := ChainTransforms(transforms...)(msg)
	return out
}
