// Package telemetry mirrors burn events to InfluxDB so operators can chart
// fuel consumption outside the ship's own event log. Failures here never
// block the burn loop: writes are asynchronous and errors are only logged.
package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"

	"github.com/spacefleet/spaceship/internal/config"
	"github.com/spacefleet/spaceship/internal/model"
)

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	bucket string
	logger zerolog.Logger
}

// Connect initializes the InfluxDB client and validates it with a ping.
func Connect(ctx context.Context, cfg config.InfluxConfig, log zerolog.Logger) (*Manager, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("influx is disabled")
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL(),
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := client.Ping(ctx)
	if err != nil || !running {
		client.Close()
		return nil, fmt.Errorf("influxdb not reachable at %s: %v", cfg.URL(), err)
	}

	m := &Manager{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
		logger: log,
	}

	go func() {
		for writeErr := range m.writer.Errors() {
			m.logger.Error().Err(writeErr).Msg("InfluxDB write error")
		}
	}()

	log.Info().Str("url", cfg.URL()).Str("bucket", cfg.Bucket).Msg("InfluxDB client initialized")
	return m, nil
}

// WriteBurnPoint records one burn step.
func (m *Manager) WriteBurnPoint(direction model.Direction, fuelBurned, nextBurn float64) {
	point := influxdb2.NewPoint(
		"burn_step",
		map[string]string{"direction": direction.String()},
		map[string]interface{}{
			"fuel_burned": fuelBurned,
			"next_burn":   nextBurn,
		},
		time.Now(),
	)
	m.writer.WritePoint(point)
}

// Close flushes pending writes and shuts the client down.
func (m *Manager) Close() {
	m.writer.Flush()
	m.client.Close()
}
