package strategy

import "image"

// Pipeline holds variant strategies in priority order
type Pipeline struct {
	strategies []VariantStrategy
}

// NewPipeline creates a pipeline that tries strategies in the given order
func NewPipeline(strategies ...VariantStrategy) *Pipeline {
	return &Pipeline{strategies: strategies}
}

// DefaultDecodePipeline is the fixed decode order: original, upscaled,
// contrast normalized, then pre-rotated by 180 degrees
func DefaultDecodePipeline() *Pipeline {
	return NewPipeline(
		NewOriginalStrategy(),
		NewUpscaleStrategy(2),
		NewContrastStrategy(),
		NewRotateStrategy(),
	)
}

// Names returns the strategy names in priority order
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.GetStrategyName()
	}
	return names
}

// FirstMatch applies each strategy in order to each target in order and
// stops at the first variant for which try returns true. It returns the
// winning strategy name.
func (p *Pipeline) FirstMatch(targets []image.Image, try func(variant image.Image) bool) (string, bool) {
	for _, s := range p.strategies {
		for _, target := range targets {
			if try(s.Apply(target)) {
				return s.GetStrategyName(), true
			}
		}
	}
	return "", false
}
