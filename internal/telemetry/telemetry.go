// Package telemetry wires the ambient OpenTelemetry counters of
// SPEC_FULL.md §9: workflow executions, sync fan-out attempts, and REST
// request counts. Grounded on the teacher's config.Config.Telemetry
// tell.Config field (internal/config/config.go), generalized from "present
// but unused beyond config loading" to "initialized once in main and
// exercised by three domain counters", per SPEC_FULL.md §10's directive to
// give tell a concrete home rather than carry it as a config-only field.
package telemetry

import (
	"context"
	"fmt"

	"github.com/rakunlabs/tell"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rakunlabs/aasmw"

// Counters holds the three domain counters SPEC_FULL.md §9 names.
type Counters struct {
	WorkflowExecutions metric.Int64Counter
	SyncFanoutAttempts metric.Int64Counter
	RESTRequests       metric.Int64Counter
}

// Init starts tell's OTel providers from cfg and registers the domain
// counters against the resulting global meter provider, mirroring the
// teacher's tell.Config-via-chu loading with a concrete consumer attached.
func Init(ctx context.Context, cfg tell.Config) (*Counters, error) {
	if err := tell.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("telemetry: init: %w", err)
	}

	meter := otel.Meter(meterName)

	workflowExecutions, err := meter.Int64Counter(
		"aasmw.workflow.executions",
		metric.WithDescription("Completed workflow executions, labeled by workflow name and outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: workflow counter: %w", err)
	}

	syncFanoutAttempts, err := meter.Int64Counter(
		"aasmw.sync.fanout_attempts",
		metric.WithDescription("Reverse fan-out notification attempts, labeled by peer and outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: sync counter: %w", err)
	}

	restRequests, err := meter.Int64Counter(
		"aasmw.rest.requests",
		metric.WithDescription("REST requests served by the generated router, labeled by type and status."),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: rest counter: %w", err)
	}

	return &Counters{
		WorkflowExecutions: workflowExecutions,
		SyncFanoutAttempts: syncFanoutAttempts,
		RESTRequests:       restRequests,
	}, nil
}

// NoopCounters returns a Counters whose members silently discard
// measurements, used by tests and by callers that didn't configure
// telemetry.
func NoopCounters() *Counters {
	m := otel.GetMeterProvider().Meter(meterName)
	c, _ := m.Int64Counter("aasmw.noop")
	return &Counters{WorkflowExecutions: c, SyncFanoutAttempts: c, RESTRequests: c}
}
