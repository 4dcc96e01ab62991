package twin

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/physics"
)

func randomState(n int, seed int64) dynamo.State {
	rng := rand.New(rand.NewSource(seed))
	x := make(dynamo.State, n)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	return x
}

func TestLeadingLyapunovChaotic(t *testing.T) {
	l96 := physics.NewLorenz96(40, 8)
	x0 := randomState(40, 1)

	ly, err := LeadingLyapunov(context.Background(), l96, x0, 0.05, 200, 20, 1e-6)
	require.NoError(t, err)
	assert.InDelta(t, 1.7, ly.Exponent, 0.6)
	assert.InDelta(t, math.Ln2/ly.Exponent, ly.DoublingTime, 1e-12)
}

func TestLeadingLyapunovDecaying(t *testing.T) {
	l96 := physics.NewLorenz96(8, 0)
	x0 := randomState(8, 2)
	for i := range x0 {
		x0[i] *= 1e-3
	}

	ly, err := LeadingLyapunov(context.Background(), l96, x0, 0.05, 50, 10, 1e-9)
	require.NoError(t, err)
	assert.InDelta(t, -1, ly.Exponent, 0.05)
	assert.True(t, math.IsInf(ly.DoublingTime, 1))
}

func TestLeadingLyapunovErrors(t *testing.T) {
	l96 := physics.NewLorenz96(8, 8)

	_, err := LeadingLyapunov(context.Background(), l96, randomState(5, 1), 0.05, 10, 1, 1e-6)
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))

	_, err = LeadingLyapunov(context.Background(), l96, randomState(8, 1), 0.05, 1, 1, 1e-6)
	assert.True(t, errors.Is(err, dynamo.ErrInvalidConfiguration))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LeadingLyapunov(ctx, l96, randomState(8, 1), 0.05, 10, 1, 1e-6)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestForecastLyapunov(t *testing.T) {
	s := shortSuite()
	setup, err := NewSetup(s, 10)
	require.NoError(t, err)
	truth, err := Simulate(context.Background(), setup, rand.New(rand.NewSource(4)))
	require.NoError(t, err)

	ly, err := setup.ForecastLyapunov(context.Background(), truth, 1, 20)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ly.Exponent))

	_, err = setup.ForecastLyapunov(context.Background(), truth, 7, 20)
	assert.True(t, errors.Is(err, dynamo.ErrInvalidConfiguration))
}
