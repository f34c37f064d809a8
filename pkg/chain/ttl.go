package chain

import (
	"math"
	"time"
)

// TTLStrategy determines the TTL of each layer in the chain.
type TTLStrategy interface {
	// GetTTL returns the TTL for the layer at layerIndex out of numLayers.
	GetTTL(layerIndex, numLayers int, baseTTL time.Duration) time.Duration
}

// UniformTTLStrategy uses the same TTL for all layers.
type UniformTTLStrategy struct{}

// GetTTL returns baseTTL.
func (UniformTTLStrategy) GetTTL(layerIndex, numLayers int, baseTTL time.Duration) time.Duration {
	return baseTTL
}

// DecayingTTLStrategy shortens the TTL of faster layers so a process-local
// copy never outlives the shared one for long.
type DecayingTTLStrategy struct {
	// DecayFactor in (0, 1); 0.5 gives each layer half the TTL of the next.
	DecayFactor float64
}

// GetTTL returns baseTTL scaled by DecayFactor once per layer below this one.
// The last layer keeps the full baseTTL.
func (s DecayingTTLStrategy) GetTTL(layerIndex, numLayers int, baseTTL time.Duration) time.Duration {
	if s.DecayFactor <= 0 || s.DecayFactor >= 1 || layerIndex >= numLayers-1 {
		return baseTTL
	}
	exponent := float64(numLayers - layerIndex - 1)
	return time.Duration(float64(baseTTL) * math.Pow(s.DecayFactor, exponent))
}
