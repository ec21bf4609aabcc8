package upstream

import "go.opentelemetry.io/otel"

// tracer is a no-op until the binary installs an SDK tracer provider.
var tracer = otel.Tracer("flightproxy/internal/upstream")
