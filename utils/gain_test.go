package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Clamp(1.5, -1, 1))
	assert.Equal(t, -1.0, Clamp(-3, 1, -1))
	assert.Equal(t, 0.25, Clamp(0.25, -1, 1))
}

func TestDecayFactorForBudget(t *testing.T) {
	t.Parallel()

	plays := 30
	factor := DecayFactorForBudget(plays, SilenceGain)
	require.Less(t, factor, 1.0)
	require.InDelta(t, SilenceGain, GainAfter(factor, plays), 1e-9)

	// no budget means no decay
	require.Equal(t, 1.0, DecayFactorForBudget(0, SilenceGain))
}

func TestGainAfterFixedFactor(t *testing.T) {
	t.Parallel()

	// ten plays at 1/1.1 leave roughly 38.5% of the original level
	require.InDelta(t, 0.3855, GainAfter(1/1.1, 10), 1e-4)
}
