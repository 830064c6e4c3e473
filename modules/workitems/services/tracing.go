package services

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/drydock-pm/drydock/modules/workitems/services")
