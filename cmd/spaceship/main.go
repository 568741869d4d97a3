package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/spacefleet/spaceship/internal/codec"
	"github.com/spacefleet/spaceship/internal/config"
	"github.com/spacefleet/spaceship/internal/deck"
	"github.com/spacefleet/spaceship/internal/eventlog"
	"github.com/spacefleet/spaceship/internal/keys"
	"github.com/spacefleet/spaceship/internal/logging"
	"github.com/spacefleet/spaceship/internal/model"
	"github.com/spacefleet/spaceship/internal/ship"
	"github.com/spacefleet/spaceship/internal/storage"
	"github.com/spacefleet/spaceship/internal/telemetry"
	"github.com/spacefleet/spaceship/internal/thruster"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	configDir := os.Getenv("SPACESHIP_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}
	if err := config.Load(configDir); err != nil {
		return err
	}

	graylogCfg, err := config.Graylog()
	if err != nil {
		return err
	}
	logOpts := logging.Options{
		Level:   viper.GetString("logLevel"),
		Console: true,
	}
	if graylogCfg.Enabled {
		logOpts.GraylogAddress = graylogCfg.Address
	}
	logger, closeLog, err := logging.Setup(logOpts)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	storageCfg, err := config.Storage()
	if err != nil {
		return err
	}
	store, err := storage.NewStore(ctx, storageCfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	shipCfg, err := config.Ship()
	if err != nil {
		return err
	}

	space := keys.NewSpace(shipCfg.KeyPrefix)
	registry := codec.NewRegistry()

	decks := make([]*deck.Deck, 0, len(shipCfg.Decks))
	for _, dc := range shipCfg.Decks {
		decks = append(decks, deck.New(dc.Name, dc.MaxMassKg, store, space, registry,
			deck.WithLogger(logger)))
	}

	var sink ship.Telemetry
	influxCfg, err := config.Influx()
	if err != nil {
		return err
	}
	if influxCfg.Enabled {
		manager, err := telemetry.Connect(ctx, influxCfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Burn telemetry disabled")
		} else {
			defer manager.Close()
			sink = manager
		}
	}

	vessel := ship.New(ship.Config{
		BaseMassKg:       shipCfg.BaseMassKg,
		Gravity:          shipCfg.Gravity,
		Fuel:             shipCfg.Fuel,
		LowFuelThreshold: shipCfg.LowFuelThreshold,
		Decks:            decks,
		Thruster:         thruster.New(store, space, logger),
		EventLog:         eventlog.NewKVLog(ctx, store, space.EventLog()),
		Store:            store,
		Space:            space,
		Telemetry:        sink,
		Logger:           logger,
	})

	args := os.Args[1:]
	if len(args) == 0 {
		return errors.New("usage: spaceship <status|store|accelerate|events> [args]")
	}

	switch args[0] {
	case "status":
		return printStatus(ctx, vessel, shipCfg)
	case "store":
		if len(args) != 4 {
			return errors.New("usage: spaceship store <deck> <name> <massKg>")
		}
		mass, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("bad mass %q: %w", args[3], err)
		}
		return vessel.Store(ctx, args[1], model.NewSimple(args[2], mass))
	case "accelerate":
		if len(args) != 3 {
			return errors.New("usage: spaceship accelerate <speedKmh> <direction>")
		}
		speed, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("bad speed %q: %w", args[1], err)
		}
		direction, err := model.ParseDirection(args[2])
		if err != nil {
			return err
		}
		return vessel.Accelerate(ctx, model.Velocity{SpeedKmh: speed, Direction: direction})
	case "events":
		return printEvents(vessel)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printStatus(ctx context.Context, vessel *ship.Ship, cfg config.ShipConfig) error {
	mass, err := vessel.Mass(ctx)
	if err != nil {
		return err
	}
	weight, err := vessel.WeightKg(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("mass: %.2f kg\nweight: %.2f kg\nfuel: %.2f\n", mass, weight, vessel.Fuel)

	for _, dc := range cfg.Decks {
		d, ok := vessel.Deck(dc.Name)
		if !ok {
			continue
		}
		stored, err := d.StoredMass(ctx)
		if err != nil {
			return err
		}
		capacity, err := d.Capacity(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("deck %s: stored %.2f kg, capacity %.2f kg\n", d.Name, stored, capacity)
	}
	return nil
}

func printEvents(vessel *ship.Ship) error {
	events, err := vessel.EventLog().Events(time.Unix(0, 0), time.Now())
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%s %s %v\n", e.Timestamp.Format(time.RFC3339Nano), e.ID, e.Data)
	}
	return nil
}
