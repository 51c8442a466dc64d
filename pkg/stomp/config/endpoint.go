package config

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/stompws/pkg/stomp/client"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/schedule"
	"github.com/tsarna/stompws/pkg/stomp/service"
	"github.com/tsarna/stompws/pkg/stomp/transform"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

type EndpointDefinition struct {
	Name        string                `hcl:",label"`
	URL         string                `hcl:"url"`
	SockJS      bool                  `hcl:"sockjs,optional"`
	BaseURL     string                `hcl:"base_url,optional"`
	Protocols   []string              `hcl:"protocols,optional"`
	Login       string                `hcl:"login,optional"`
	Passcode    string                `hcl:"passcode,optional"`
	Host        string                `hcl:"host,optional"`
	Headers     map[string]string     `hcl:"headers,optional"`
	HTTPHeaders map[string]string     `hcl:"http_headers,optional"`
	HeartBeat   *HeartBeatDefinition  `hcl:"heartbeat,block"`
	Subscribe   []SubscribeDefinition `hcl:"subscribe,block"`
	Send        []SendDefinition      `hcl:"send,block"`
	DefRange    hcl.Range             `hcl:",def_range"`
}

type HeartBeatDefinition struct {
	Outgoing hcl.Expression `hcl:"outgoing,optional"`
	Incoming hcl.Expression `hcl:"incoming,optional"`
}

type SubscribeDefinition struct {
	Destination string            `hcl:"destination,label"`
	ID          string            `hcl:"id,optional"`
	Ack         string            `hcl:"ack,optional"`
	Headers     map[string]string `hcl:"headers,optional"`
	Filter      hcl.Expression    `hcl:"filter,optional"`
	Jq          string            `hcl:"jq,optional"`
	DefRange    hcl.Range         `hcl:",def_range"`
}

type SendDefinition struct {
	Name        string            `hcl:"name,label"`
	Destination string            `hcl:"destination"`
	Schedule    string            `hcl:"schedule,optional"`
	Body        hcl.Expression    `hcl:"body,optional"`
	Headers     map[string]string `hcl:"headers,optional"`
	DefRange    hcl.Range         `hcl:",def_range"`
}

// Endpoint is a decoded endpoint block.
type Endpoint struct {
	Name          string
	Configuration service.Configuration
	Subscriptions []*Subscription
	Sends         []*Send
}

// Subscription is a subscribe block of an endpoint.
type Subscription struct {
	Destination string
	// Header holds the SUBSCRIBE headers, id and ack included when set.
	Header *frame.Header
	Jq     string

	config *Config
	filter hcl.Expression
}

// Send is a send block of an endpoint. Sends without a schedule are sent
// once per established session.
type Send struct {
	Name        string
	Endpoint    string
	Destination string
	Schedule    string
	Header      *frame.Header

	config *Config
	body   hcl.Expression
}

type EndpointBlockHandler struct {
	BlockHandlerBase
}

func NewEndpointBlockHandler() *EndpointBlockHandler {
	return &EndpointBlockHandler{}
}

func (h *EndpointBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	def := EndpointDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	// DecodeBody doesn't see the labels of the block itself
	if len(block.Labels) > 0 {
		def.Name = block.Labels[0]
	}

	if _, exists := config.Endpoints[def.Name]; exists {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Duplicate endpoint",
			Detail:   fmt.Sprintf("Endpoint %s is already defined", def.Name),
			Subject:  &block.DefRange,
		})
	}

	endpoint, addDiags := h.BuildEndpoint(config, &def)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return diags
	}

	config.Endpoints[def.Name] = endpoint
	config.endpointOrder = append(config.endpointOrder, def.Name)

	return diags
}

func (h *EndpointBlockHandler) BuildEndpoint(config *Config, def *EndpointDefinition) (*Endpoint, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	svcConfig := service.Configuration{
		EndpointURL: def.URL,
		WithSockJS:  def.SockJS,
		Protocols:   def.Protocols,
		Host:        def.Host,
		Connect: client.Config{
			Headers:  headerFromMap(def.Headers),
			Login:    def.Login,
			Passcode: def.Passcode,
		},
	}

	if def.BaseURL != "" {
		base, err := url.Parse(def.BaseURL)
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid base URL",
				Detail:   fmt.Sprintf("Failed to parse base_url %q: %s", def.BaseURL, err),
				Subject:  &def.DefRange,
			})
		}
		svcConfig.BaseURL = base
	}

	if len(def.HTTPHeaders) > 0 {
		svcConfig.HTTPHeaders = make(map[string][]string, len(def.HTTPHeaders))
		for k, v := range def.HTTPHeaders {
			svcConfig.HTTPHeaders[k] = []string{v}
		}
	}

	if def.HeartBeat != nil {
		hb := client.DefaultHeartBeat
		if IsExpressionProvided(def.HeartBeat.Outgoing) {
			d, addDiags := config.ParseDuration(def.HeartBeat.Outgoing, time.Millisecond)
			diags = diags.Extend(addDiags)
			hb.Outgoing = d
		}
		if IsExpressionProvided(def.HeartBeat.Incoming) {
			d, addDiags := config.ParseDuration(def.HeartBeat.Incoming, time.Millisecond)
			diags = diags.Extend(addDiags)
			hb.Incoming = d
		}
		svcConfig.HeartBeat = &hb
	}

	endpoint := &Endpoint{
		Name:          def.Name,
		Configuration: svcConfig,
	}

	for i := range def.Subscribe {
		sub, addDiags := buildSubscription(config, &def.Subscribe[i])
		diags = diags.Extend(addDiags)
		endpoint.Subscriptions = append(endpoint.Subscriptions, sub)
	}

	names := make(map[string]bool)
	for i := range def.Send {
		sendDef := &def.Send[i]
		if names[sendDef.Name] {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate send",
				Detail:   fmt.Sprintf("Send %s is already defined in endpoint %s", sendDef.Name, def.Name),
				Subject:  &sendDef.DefRange,
			})
			continue
		}
		names[sendDef.Name] = true

		endpoint.Sends = append(endpoint.Sends, &Send{
			Name:        sendDef.Name,
			Endpoint:    def.Name,
			Destination: sendDef.Destination,
			Schedule:    sendDef.Schedule,
			Header:      headerFromMap(sendDef.Headers),
			config:      config,
			body:        sendDef.Body,
		})
	}

	return endpoint, diags
}

func buildSubscription(config *Config, def *SubscribeDefinition) (*Subscription, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	header := headerFromMap(def.Headers)
	if def.ID != "" {
		header.Set(frame.HdrId, def.ID)
	}

	switch def.Ack {
	case "":
	case "auto", "client", "client-individual":
		header.Set(frame.HdrAck, def.Ack)
	default:
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid ack mode",
			Detail:   fmt.Sprintf("ack must be auto, client or client-individual, got %q", def.Ack),
			Subject:  &def.DefRange,
		})
	}

	sub := &Subscription{
		Destination: def.Destination,
		Header:      header,
		Jq:          def.Jq,
		config:      config,
	}
	if IsExpressionProvided(def.Filter) {
		sub.filter = def.Filter
	}

	return sub, diags
}

// Transforms returns the output pipeline of the subscription: the filter
// expression, if any, followed by the jq query, if any.
func (s *Subscription) Transforms(logger *zap.Logger) ([]transform.MessageTransformFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var transforms []transform.MessageTransformFunc

	if s.filter != nil {
		transforms = append(transforms, func(msg *transform.Message) (*transform.Message, bool) {
			keep, err := s.Matches(msg)
			if err != nil {
				logger.Error("Error evaluating filter",
					zap.String("destination", s.Destination),
					zap.Error(err))
				return nil, false
			}
			if !keep {
				return nil, false
			}
			return msg, true
		})
	}

	if s.Jq != "" {
		jq, err := transform.JqTransform(s.Jq, logger)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, jq)
	}

	return transforms, nil
}

// Matches evaluates the filter expression against msg. The expression sees
// the message as the variable message. Without a filter every message
// matches.
func (s *Subscription) Matches(msg *transform.Message) (bool, error) {
	if s.filter == nil {
		return true, nil
	}

	evalCtx := s.config.evalCtx.NewChild()
	evalCtx.Variables = map[string]cty.Value{
		"message": messageObject(msg),
	}

	val, diags := s.filter.Value(evalCtx)
	if diags.HasErrors() {
		return false, diags
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.Bool {
		return false, fmt.Errorf("filter must evaluate to a bool, got %s", val.Type().FriendlyName())
	}

	return val.True(), nil
}

// Body evaluates the body expression of the n-th send, counting from 1.
// The expression sees ctx.endpoint, ctx.name and ctx.run.
func (s *Send) Body(_ context.Context, n int64) (string, error) {
	if !IsExpressionProvided(s.body) {
		return "", nil
	}

	evalCtx := s.config.evalCtx.NewChild()
	evalCtx.Variables = map[string]cty.Value{
		"ctx": cty.ObjectVal(map[string]cty.Value{
			"endpoint": cty.StringVal(s.Endpoint),
			"name":     cty.StringVal(s.Name),
			"run":      cty.NumberIntVal(n),
		}),
	}

	val, diags := s.body.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}

	return valueToBody(val)
}

// Job returns the send as a schedule.Job.
func (s *Send) Job() schedule.Job {
	return schedule.Job{
		Name:        s.Endpoint + "." + s.Name,
		Schedule:    s.Schedule,
		Destination: s.Destination,
		Header:      s.Header,
		Body:        s.Body,
	}
}

// headerFromMap builds a header with keys in sorted order.
func headerFromMap(m map[string]string) *frame.Header {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header := frame.NewHeader()
	for _, k := range keys {
		header.Set(k, m[k])
	}
	return header
}
