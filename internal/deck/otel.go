package deck

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/spacefleet/spaceship/internal/deck"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
