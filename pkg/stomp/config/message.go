package config

import (
	"encoding/json"

	"github.com/tsarna/go2cty2go"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/transform"
	"github.com/zclconf/go-cty/cty"
)

// messageObject exposes a message to filter expressions:
//
//	message.destination, message.subscription, message.message_id
//	message.headers   all headers, as an object
//	message.body      the body text
//	message.json      the body decoded as JSON, or null
func messageObject(msg *transform.Message) cty.Value {
	headers := make(map[string]cty.Value, msg.Header.Len())
	msg.Header.Each(func(k, v string) {
		headers[k] = cty.StringVal(v)
	})

	body := msg.String()
	jsonVal := cty.NullVal(cty.DynamicPseudoType)

	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err == nil {
		if v, err := go2cty2go.AnyToCty(decoded); err == nil {
			jsonVal = v
		}
	}

	return cty.ObjectVal(map[string]cty.Value{
		"destination":  cty.StringVal(msg.Destination),
		"subscription": cty.StringVal(msg.Subscription),
		"message_id":   cty.StringVal(msg.Header.Value(frame.HdrMessageId)),
		"headers":      cty.ObjectVal(headers),
		"body":         cty.StringVal(body),
		"json":         jsonVal,
	})
}
