package thruster

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacefleet/spaceship/internal/keys"
	"github.com/spacefleet/spaceship/internal/kv/memory"
	"github.com/spacefleet/spaceship/internal/model"
)

const (
	earthGravity = 9.8
	twoMillionKg = 2e6
)

func newTestThruster() (*Thruster, *memory.Store, keys.Space) {
	store := memory.New()
	space := keys.NewSpace("test")
	return New(store, space, zerolog.Nop()), store, space
}

func drain(t *testing.T, ctx context.Context, b *Burn) []Step {
	t.Helper()
	var steps []Step
	for {
		step, ok, err := b.Next(ctx)
		require.NoError(t, err)
		if !ok {
			return steps
		}
		steps = append(steps, step)
	}
}

func TestFire_BurnToTargetVelocity(t *testing.T) {
	ctx := context.Background()
	thr, store, space := newTestThruster()

	weight := twoMillionKg * earthGravity
	burn, err := thr.Fire(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North}, weight, twoMillionKg)
	require.NoError(t, err)

	steps := drain(t, ctx, burn)
	require.Len(t, steps, 10)

	for _, step := range steps[:8] {
		assert.Equal(t, Step{FuelBurned: 2, NextBurnEstimate: 2}, step)
	}
	assert.Equal(t, 2.0, steps[8].FuelBurned)
	assert.Equal(t, 0.27485380116959135, steps[8].NextBurnEstimate)
	assert.Equal(t, Step{FuelBurned: 0.27485380116959135, NextBurnEstimate: 0}, steps[9])

	speed, err := store.GetFloat(ctx, space.ShipCurrentSpeed(model.North))
	require.NoError(t, err)
	assert.Equal(t, 500.0, math.Round(speed))
}

func TestFire_HeavierShipBurnsLonger(t *testing.T) {
	ctx := context.Background()
	thr, _, _ := newTestThruster()

	mass := twoMillionKg + 750
	weight := mass * earthGravity
	burn, err := thr.Fire(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North}, weight, mass)
	require.NoError(t, err)

	steps := drain(t, ctx, burn)
	require.Len(t, steps, 10)
	assert.Equal(t, 0.28612802400872894, steps[9].FuelBurned)
}

func TestFire_DegenerateThrust(t *testing.T) {
	ctx := context.Background()
	thr, _, _ := newTestThruster()

	// Weight at or above thrust: no positive acceleration is possible.
	_, err := thr.Fire(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North}, ThrustNewtons, twoMillionKg)
	assert.ErrorIs(t, err, ErrDegenerateThrust)

	_, err = thr.Fire(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North}, ThrustNewtons*2, twoMillionKg)
	assert.ErrorIs(t, err, ErrDegenerateThrust)
}

func TestBurn_NotReentrant(t *testing.T) {
	ctx := context.Background()
	thr, _, _ := newTestThruster()

	weight := twoMillionKg * earthGravity
	burn, err := thr.Fire(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North}, weight, twoMillionKg)
	require.NoError(t, err)

	drain(t, ctx, burn)

	_, ok, err := burn.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "an exhausted burn must stay exhausted")
}

func TestBurn_DirectionsTrackedSeparately(t *testing.T) {
	ctx := context.Background()
	thr, store, space := newTestThruster()

	weight := twoMillionKg * earthGravity
	for _, dir := range []model.Direction{model.North, model.East} {
		burn, err := thr.Fire(ctx, model.Velocity{SpeedKmh: 100, Direction: dir}, weight, twoMillionKg)
		require.NoError(t, err)
		drain(t, ctx, burn)
	}

	north, err := store.GetFloat(ctx, space.ShipCurrentSpeed(model.North))
	require.NoError(t, err)
	east, err := store.GetFloat(ctx, space.ShipCurrentSpeed(model.East))
	require.NoError(t, err)
	assert.Equal(t, 100.0, math.Round(north))
	assert.Equal(t, 100.0, math.Round(east))
}

func TestBurn_ExactWholeSecondsHasNoFractionalStep(t *testing.T) {
	ctx := context.Background()
	thr, _, _ := newTestThruster()

	// accel is 54.72 km/h per second for this mass; a target of exactly
	// two steps leaves no remainder.
	weight := twoMillionKg * earthGravity
	burn, err := thr.Fire(ctx, model.Velocity{SpeedKmh: 54.72 * 2, Direction: model.North}, weight, twoMillionKg)
	require.NoError(t, err)

	steps := drain(t, ctx, burn)
	require.Len(t, steps, 2)
	assert.Equal(t, Step{FuelBurned: 2, NextBurnEstimate: 2}, steps[0])
	assert.Equal(t, Step{FuelBurned: 2, NextBurnEstimate: 0}, steps[1])
}
