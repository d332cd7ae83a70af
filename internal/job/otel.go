package job

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/rlviewer/telemetry/internal/job"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
