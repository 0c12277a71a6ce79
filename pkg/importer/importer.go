// Package importer converts pasted text into request resources. Converters
// are tried in order by a Chain; a converter that does not recognize its
// input returns a nil result so the next one can try.
package importer

import (
	"errors"
	"fmt"
	"log/slog"
)

// Placeholder identifiers resolved by the caller's import pipeline.
const (
	RequestIDPlaceholder   = "__REQ__"
	WorkspaceIDPlaceholder = "__WORKSPACE_ID__"
)

// ErrUnrecognizedFormat is returned by Chain.Convert when no converter accepts the input.
var ErrUnrecognizedFormat = errors.New("no importer recognized the input format")

// Converter turns raw text into requests.
type Converter interface {
	ID() string
	Name() string
	Description() string
	// Convert returns (nil, nil) when raw is not in this converter's format.
	Convert(raw string) ([]*Request, error)
}

// Result is the output of a successful Chain conversion.
type Result struct {
	ConverterID string
	Requests    []*Request
}

// Chain tries converters in order until one recognizes the input.
type Chain struct {
	converters []Converter
}

// NewChain creates a chain over the given converters.
func NewChain(converters ...Converter) *Chain {
	return &Chain{converters: converters}
}

// Converters returns the converters in evaluation order.
func (c *Chain) Converters() []Converter {
	out := make([]Converter, len(c.converters))
	copy(out, c.converters)
	return out
}

// Convert runs raw through the chain. A converter error stops the chain.
func (c *Chain) Convert(raw string) (*Result, error) {
	for _, conv := range c.converters {
		reqs, err := conv.Convert(raw)
		if err != nil {
			return nil, fmt.Errorf("%s importer: %w", conv.ID(), err)
		}
		if reqs == nil {
			slog.Debug("Importer did not match", "importer", conv.ID())
			continue
		}
		slog.Debug("Importer matched", "importer", conv.ID(), "requests", len(reqs))
		return &Result{ConverterID: conv.ID(), Requests: reqs}, nil
	}
	return nil, ErrUnrecognizedFormat
}
