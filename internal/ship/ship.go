// Package ship composes the decks, thruster and event log into one vessel
// and drives the burn-consumption loop.
package ship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacefleet/spaceship/internal/deck"
	"github.com/spacefleet/spaceship/internal/eventlog"
	"github.com/spacefleet/spaceship/internal/keys"
	"github.com/spacefleet/spaceship/internal/kv"
	"github.com/spacefleet/spaceship/internal/model"
	"github.com/spacefleet/spaceship/internal/thruster"
)

// ErrUnknownDeck is returned when cargo is addressed to a deck the ship does
// not have.
var ErrUnknownDeck = errors.New("ship: unknown deck")

// BurnData is the payload logged for every burn step.
type BurnData struct {
	FuelBurned float64 `json:"fuelBurned" msgpack:"fuel_burned"`
	NextBurn   float64 `json:"nextBurn" msgpack:"next_burn"`
}

// Telemetry mirrors burn steps to an external system. Implementations must
// tolerate being called once per step.
type Telemetry interface {
	WriteBurnPoint(direction model.Direction, fuelBurned, nextBurn float64)
}

// Ship is one spacecraft over a shared backing store.
//
// Accelerate is single-threaded cooperative: the shared speed cells and the
// fuel accounting are not covered by the decks' optimistic protocol, so
// concurrent Accelerate calls against the same ship are not supported.
type Ship struct {
	BaseMassKg       float64
	Gravity          float64
	Fuel             float64
	LowFuelThreshold float64

	decks     map[string]*deck.Deck
	thruster  *thruster.Thruster
	log       eventlog.Log
	store     kv.Store
	space     keys.Space
	telemetry Telemetry
	logger    zerolog.Logger

	now func() time.Time
}

// Config carries the ship's construction parameters.
type Config struct {
	BaseMassKg       float64
	Gravity          float64
	Fuel             float64
	LowFuelThreshold float64
	Decks            []*deck.Deck
	Thruster         *thruster.Thruster
	EventLog         eventlog.Log
	Store            kv.Store
	Space            keys.Space
	Telemetry        Telemetry
	Logger           zerolog.Logger
}

// New assembles a ship.
func New(cfg Config) *Ship {
	decks := make(map[string]*deck.Deck, len(cfg.Decks))
	for _, d := range cfg.Decks {
		decks[d.Name] = d
	}
	return &Ship{
		BaseMassKg:       cfg.BaseMassKg,
		Gravity:          cfg.Gravity,
		Fuel:             cfg.Fuel,
		LowFuelThreshold: cfg.LowFuelThreshold,
		decks:            decks,
		thruster:         cfg.Thruster,
		log:              cfg.EventLog,
		store:            cfg.Store,
		space:            cfg.Space,
		telemetry:        cfg.Telemetry,
		logger:           cfg.Logger,
		now:              time.Now,
	}
}

// Deck returns the named deck.
func (s *Ship) Deck(name string) (*deck.Deck, bool) {
	d, ok := s.decks[name]
	return d, ok
}

// EventLog returns the ship's event log.
func (s *Ship) EventLog() eventlog.Log {
	return s.log
}

// Mass is the ship's base mass plus all stored cargo.
func (s *Ship) Mass(ctx context.Context) (float64, error) {
	mass := s.BaseMassKg
	for _, d := range s.decks {
		stored, err := d.StoredMass(ctx)
		if err != nil {
			return 0, fmt.Errorf("reading stored mass of deck %s: %w", d.Name, err)
		}
		mass += stored
	}
	return mass, nil
}

// WeightKg is the ship's mass under the current gravity.
func (s *Ship) WeightKg(ctx context.Context) (float64, error) {
	mass, err := s.Mass(ctx)
	if err != nil {
		return 0, err
	}
	return mass * s.Gravity, nil
}

// Store loads an object onto the named deck.
func (s *Ship) Store(ctx context.Context, deckName string, obj *model.Object) error {
	d, ok := s.decks[deckName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDeck, deckName)
	}
	return d.Store(ctx, obj)
}

// CurrentSpeed reads the shared speed cell for a direction.
func (s *Ship) CurrentSpeed(ctx context.Context, d model.Direction) (float64, error) {
	speed, err := s.store.GetFloat(ctx, s.space.ShipCurrentSpeed(d))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	return speed, err
}

// Accelerate burns toward the target velocity, draining the thruster one
// step at a time. Every step is logged; after each step the loop checks
// whether the fuel left above the low-fuel reserve covers the next planned
// burn, and stops pulling further steps if not. A step already applied is
// never rolled back. Fuel actually burned is debited when the call returns.
func (s *Ship) Accelerate(ctx context.Context, target model.Velocity) error {
	weight, err := s.WeightKg(ctx)
	if err != nil {
		return err
	}
	mass, err := s.Mass(ctx)
	if err != nil {
		return err
	}

	burn, err := s.thruster.Fire(ctx, target, weight, mass)
	if err != nil {
		return fmt.Errorf("firing thruster: %w", err)
	}

	var burned float64
	cancelled := false
	for {
		step, ok, err := burn.Next(ctx)
		if err != nil {
			s.Fuel -= burned
			return fmt.Errorf("burn step failed: %w", err)
		}
		if !ok {
			break
		}

		burned += step.FuelBurned
		if err := s.log.Add(eventlog.New(s.now(), BurnData{
			FuelBurned: step.FuelBurned,
			NextBurn:   step.NextBurnEstimate,
		})); err != nil {
			s.Fuel -= burned
			return fmt.Errorf("logging burn event: %w", err)
		}
		if s.telemetry != nil {
			s.telemetry.WriteBurnPoint(target.Direction, step.FuelBurned, step.NextBurnEstimate)
		}

		remaining := s.Fuel - burned - s.LowFuelThreshold
		if remaining < step.NextBurnEstimate {
			cancelled = true
			s.logger.Info().
				Str("direction", target.Direction.String()).
				Float64("fuelBurned", burned).
				Float64("remainingAboveReserve", remaining).
				Msg("Burn cancelled at low-fuel threshold")
			break
		}
	}

	s.Fuel -= burned
	if !cancelled {
		s.logger.Debug().
			Str("direction", target.Direction.String()).
			Float64("fuelBurned", burned).
			Msg("Burn complete")
	}
	return nil
}
