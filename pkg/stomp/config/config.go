// Package config loads STOMP endpoint definitions from HCL files.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"
)

type ConfigBuilder struct {
	logger        *zap.Logger
	sources       []any
	blockHandlers map[string]BlockHandler
}

type Config struct {
	Logger    *zap.Logger
	Functions map[string]function.Function
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	Endpoints map[string]*Endpoint
	// endpointOrder keeps declaration order for Endpoint listing.
	endpointOrder []string
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		logger:        zap.NewNop(),
		sources:       make([]any, 0),
		blockHandlers: GetBlockHandlers(),
	}
}

func (c *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithSources adds configuration sources: file or directory paths, or
// []byte holding HCL text.
func (c *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	c.sources = append(c.sources, sources...)
	return c
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	config := &Config{
		Logger:    cb.logger,
		Constants: make(map[string]cty.Value),
		Endpoints: make(map[string]*Endpoint),
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	blocks, addDiags := cb.GetBlocks(bodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Functions = GetFunctions()

	// Add environment variables to the evaluation context
	config.Constants["env"] = GetEnvObject()

	config.evalCtx = &hcl.EvalContext{
		Functions: config.Functions,
		Variables: config.Constants,
	}

	// Preprocess blocks

	for _, block := range blocks {
		if handler, ok := cb.blockHandlers[block.Type]; ok {
			diags = diags.Extend(handler.Preprocess(block))
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	for _, handler := range cb.blockHandlers {
		diags = diags.Extend(handler.FinishPreprocessing(config))
	}
	if diags.HasErrors() {
		return nil, diags
	}

	// Process blocks

	for _, block := range blocks {
		if handler, ok := cb.blockHandlers[block.Type]; ok {
			diags = diags.Extend(handler.Process(config, block))
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	config.Logger.Info("Config built successfully", zap.Int("endpoints", len(config.Endpoints)))

	return config, diags
}

// Endpoint returns the endpoint with the given name.
func (c *Config) Endpoint(name string) (*Endpoint, error) {
	if ep, ok := c.Endpoints[name]; ok {
		return ep, nil
	}
	return nil, fmt.Errorf("endpoint %q is not defined", name)
}

// DefaultEndpoint returns the only endpoint, or an error if there is not
// exactly one.
func (c *Config) DefaultEndpoint() (*Endpoint, error) {
	switch len(c.endpointOrder) {
	case 0:
		return nil, fmt.Errorf("no endpoint is defined")
	case 1:
		return c.Endpoints[c.endpointOrder[0]], nil
	default:
		return nil, fmt.Errorf("%d endpoints are defined, choose one by name", len(c.endpointOrder))
	}
}

// EndpointList returns the endpoints in declaration order.
func (c *Config) EndpointList() []*Endpoint {
	out := make([]*Endpoint, 0, len(c.endpointOrder))
	for _, name := range c.endpointOrder {
		out = append(out, c.Endpoints[name])
	}
	return out
}
