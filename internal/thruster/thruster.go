// Package thruster simulates firing the ship's propulsion system. Fire
// converts a target velocity into a finite series of one-second burn steps;
// the consumer pulls them one at a time and may simply stop pulling, which
// is how the ship cancels a burn at a step boundary.
package thruster

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"

	"github.com/spacefleet/spaceship/internal/keys"
	"github.com/spacefleet/spaceship/internal/kv"
	"github.com/spacefleet/spaceship/internal/model"
)

const (
	// ThrustNewtons is the constant thrust produced while burning.
	ThrustNewtons = 5e7
	// FuelPerSecond is the fuel units burned per whole second of thrust.
	FuelPerSecond = 2.0
)

// ErrDegenerateThrust means the burn parameters yield a non-positive
// acceleration: the ship cannot reach any positive target velocity, and the
// whole Fire call is abandoned.
var ErrDegenerateThrust = errors.New("thruster: non-positive acceleration")

// Step is one discrete unit of thruster firing. NextBurnEstimate is the fuel
// the following step is expected to burn; zero means no further burn is
// planned.
type Step struct {
	FuelBurned       float64
	NextBurnEstimate float64
}

// Thruster advances the shared per-direction speed cells in the backing
// store as burns are drained.
type Thruster struct {
	store  kv.Store
	space  keys.Space
	logger zerolog.Logger
}

// New creates a thruster over the given store and key space.
func New(store kv.Store, space keys.Space, log zerolog.Logger) *Thruster {
	return &Thruster{store: store, space: space, logger: log}
}

// Fire plans a burn to the target velocity given the ship's weight and mass
// at call time.
//
// The weight term is subtracted from the thrust directly; the formula keeps
// the source simulation's literal arithmetic because the published burn
// tables are derived from it.
func (t *Thruster) Fire(ctx context.Context, target model.Velocity, shipWeightKg, shipMassKg float64) (*Burn, error) {
	resultantForceN := ThrustNewtons - shipWeightKg
	accelMs2 := resultantForceN / shipMassKg
	accelKmhPerSecond := accelMs2 * 3.6

	if accelKmhPerSecond <= 0 {
		return nil, ErrDegenerateThrust
	}

	totalSeconds := target.SpeedKmh / accelKmhPerSecond
	wholeSeconds := math.Floor(totalSeconds)
	remainder := totalSeconds - wholeSeconds

	t.logger.Debug().
		Str("direction", target.Direction.String()).
		Float64("targetKmh", target.SpeedKmh).
		Float64("accelKmhPerSecond", accelKmhPerSecond).
		Float64("seconds", totalSeconds).
		Msg("Burn planned")

	return &Burn{
		thruster:  t,
		speedKey:  t.space.ShipCurrentSpeed(target.Direction),
		accel:     accelKmhPerSecond,
		whole:     int(wholeSeconds),
		remainder: remainder,
	}, nil
}

// Burn is a lazy, finite, non-restartable sequence of burn steps. Each Next
// applies one step's acceleration to the shared speed cell before yielding;
// once exhausted it only reports done.
type Burn struct {
	thruster  *Thruster
	speedKey  string
	accel     float64
	whole     int
	remainder float64
	issued    int
	done      bool
}

// Next applies and returns the next burn step. The boolean is false once the
// sequence is exhausted. No side effect happens between steps, so a consumer
// that stops calling Next cancels the burn cleanly.
func (b *Burn) Next(ctx context.Context) (Step, bool, error) {
	if b.done {
		return Step{}, false, nil
	}

	if b.issued < b.whole {
		if _, err := b.thruster.store.IncrByFloat(ctx, b.speedKey, b.accel); err != nil {
			return Step{}, false, err
		}
		b.issued++

		next := FuelPerSecond
		if b.issued == b.whole {
			// The following step is the partial one (or nothing).
			next = FuelPerSecond * b.remainder
			if b.remainder == 0 {
				b.done = true
			}
		}
		return Step{FuelBurned: FuelPerSecond, NextBurnEstimate: next}, true, nil
	}

	if b.remainder > 0 {
		if _, err := b.thruster.store.IncrByFloat(ctx, b.speedKey, b.accel*b.remainder); err != nil {
			return Step{}, false, err
		}
		b.done = true
		return Step{FuelBurned: FuelPerSecond * b.remainder, NextBurnEstimate: 0}, true, nil
	}

	b.done = true
	return Step{}, false, nil
}
