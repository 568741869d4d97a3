package ship

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacefleet/spaceship/internal/codec"
	"github.com/spacefleet/spaceship/internal/deck"
	"github.com/spacefleet/spaceship/internal/eventlog"
	"github.com/spacefleet/spaceship/internal/keys"
	"github.com/spacefleet/spaceship/internal/kv/memory"
	"github.com/spacefleet/spaceship/internal/model"
	"github.com/spacefleet/spaceship/internal/thruster"
)

const (
	earthGravity = 9.8
	twoMillionKg = 2e6
)

func newTestShip(t *testing.T) (*Ship, *eventlog.MemoryLog) {
	t.Helper()
	store := memory.New()
	space := keys.NewSpace("test")
	registry := codec.NewRegistry()
	log := eventlog.NewMemoryLog()

	vessel := New(Config{
		BaseMassKg:       twoMillionKg,
		Gravity:          earthGravity,
		Fuel:             100000,
		LowFuelThreshold: 100,
		Decks: []*deck.Deck{
			deck.New("main", 1000, store, space, registry),
		},
		Thruster: thruster.New(store, space, zerolog.Nop()),
		EventLog: log,
		Store:    store,
		Space:    space,
		Logger:   zerolog.Nop(),
	})
	return vessel, log
}

func burnEvents(t *testing.T, log *eventlog.MemoryLog) []BurnData {
	t.Helper()
	events := log.All()
	out := make([]BurnData, 0, len(events))
	for _, e := range events {
		data, ok := e.Data.(BurnData)
		require.True(t, ok, "unexpected event payload %T", e.Data)
		out = append(out, data)
	}
	return out
}

func TestAccelerate_BurnToCompletion(t *testing.T) {
	ctx := context.Background()
	vessel, log := newTestShip(t)

	err := vessel.Accelerate(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North})
	require.NoError(t, err)

	events := burnEvents(t, log)
	require.Len(t, events, 10)
	for _, e := range events[:8] {
		assert.Equal(t, BurnData{FuelBurned: 2, NextBurn: 2}, e)
	}
	assert.Equal(t, BurnData{FuelBurned: 0.27485380116959135, NextBurn: 0}, events[9])

	speed, err := vessel.CurrentSpeed(ctx, model.North)
	require.NoError(t, err)
	assert.Equal(t, 500.0, math.Round(speed))
}

func TestAccelerate_StopsAtLowFuelThreshold(t *testing.T) {
	ctx := context.Background()
	vessel, log := newTestShip(t)
	vessel.Fuel = 102

	err := vessel.Accelerate(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North})
	require.NoError(t, err)

	events := burnEvents(t, log)
	require.Len(t, events, 1)
	assert.Equal(t, BurnData{FuelBurned: 2, NextBurn: 2}, events[0])

	speed, err := vessel.CurrentSpeed(ctx, model.North)
	require.NoError(t, err)
	assert.Equal(t, 55.0, math.Round(speed))

	// The one applied step is never rolled back, and its fuel is spent.
	assert.Equal(t, 100.0, vessel.Fuel)
}

func TestAccelerate_DeckMassAffectsPhysics(t *testing.T) {
	ctx := context.Background()
	vessel, log := newTestShip(t)

	require.NoError(t, vessel.Store(ctx, "main", model.NewSimple("loader mech", 750)))

	err := vessel.Accelerate(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North})
	require.NoError(t, err)

	events := burnEvents(t, log)
	require.Len(t, events, 10)
	for _, e := range events[:8] {
		assert.Equal(t, BurnData{FuelBurned: 2, NextBurn: 2}, e)
	}
	assert.Equal(t, BurnData{FuelBurned: 0.28612802400872894, NextBurn: 0}, events[9])

	speed, err := vessel.CurrentSpeed(ctx, model.North)
	require.NoError(t, err)
	assert.Equal(t, 500.0, math.Round(speed))
}

func TestAccelerate_DegenerateThrust(t *testing.T) {
	ctx := context.Background()
	vessel, log := newTestShip(t)
	// Crush the ship under enough gravity that weight exceeds thrust.
	vessel.Gravity = 100

	err := vessel.Accelerate(ctx, model.Velocity{SpeedKmh: 500, Direction: model.North})
	assert.ErrorIs(t, err, thruster.ErrDegenerateThrust)
	assert.Equal(t, 0, log.Len())
}

func TestStore_WeightIncludesCargo(t *testing.T) {
	ctx := context.Background()
	vessel, _ := newTestShip(t)

	weight, err := vessel.WeightKg(ctx)
	require.NoError(t, err)
	assert.Equal(t, twoMillionKg*earthGravity, weight)

	require.NoError(t, vessel.Store(ctx, "main", model.NewSimple("Bob", 86)))

	weight, err = vessel.WeightKg(ctx)
	require.NoError(t, err)
	assert.Equal(t, (twoMillionKg+86)*earthGravity, weight)
}

func TestStore_RoundTripThroughDeck(t *testing.T) {
	ctx := context.Background()
	vessel, _ := newTestShip(t)

	bob := model.NewSimple("Bob", 86)
	require.NoError(t, vessel.Store(ctx, "main", bob))

	d, ok := vessel.Deck("main")
	require.True(t, ok)
	got, err := d.Get(ctx, "Bob")
	require.NoError(t, err)
	assert.Equal(t, bob, got)
}

func TestStore_UnknownDeck(t *testing.T) {
	ctx := context.Background()
	vessel, _ := newTestShip(t)

	err := vessel.Store(ctx, "cargo-bay-9", model.NewSimple("Bob", 86))
	assert.ErrorIs(t, err, ErrUnknownDeck)
}

func TestStore_OverCapacityPropagates(t *testing.T) {
	ctx := context.Background()
	vessel, _ := newTestShip(t)

	err := vessel.Store(ctx, "main", model.NewSimple("loader mech", 1500))
	assert.ErrorIs(t, err, deck.ErrNoCapacity)
}

func TestAccelerate_FreshBurnPerCall(t *testing.T) {
	ctx := context.Background()
	vessel, log := newTestShip(t)

	target := model.Velocity{SpeedKmh: 500, Direction: model.North}
	require.NoError(t, vessel.Accelerate(ctx, target))
	require.NoError(t, vessel.Accelerate(ctx, target))

	// Two full burns: each drains its own freshly constructed sequence.
	assert.Equal(t, 20, log.Len())

	speed, err := vessel.CurrentSpeed(ctx, model.North)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, math.Round(speed))
}

func TestCurrentSpeed_DefaultsToZero(t *testing.T) {
	ctx := context.Background()
	vessel, _ := newTestShip(t)

	speed, err := vessel.CurrentSpeed(ctx, model.SouthWest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, speed)
}
