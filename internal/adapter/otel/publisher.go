package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with OpenTelemetry tracing.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, event domain.Event, tenant domain.Tenant) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithAttributes(
			attribute.String("event.type", string(event)),
			attribute.String("tenant.id", tenant.ID),
			attribute.String("tenant.subdomain", tenant.Subdomain),
			attribute.String("tenant.status", string(tenant.Status)),
		),
	)
	defer span.End()

	err := p.next.Publish(ctx, event, tenant)
	recordError(span, err)
	return err
}

// TracingProvisioner wraps a domain.Provisioner with OpenTelemetry tracing.
type TracingProvisioner struct {
	next   domain.Provisioner
	tracer trace.Tracer
}

// Compile-time check: TracingProvisioner implements domain.Provisioner.
var _ domain.Provisioner = (*TracingProvisioner)(nil)

// NewTracingProvisioner creates a tracing decorator around the given provisioner.
func NewTracingProvisioner(next domain.Provisioner) *TracingProvisioner {
	return &TracingProvisioner{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (p *TracingProvisioner) Provision(ctx context.Context, tenant domain.Tenant, admin domain.Account) error {
	ctx, span := p.tracer.Start(ctx, "Provisioner.Provision",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("tenant.subdomain", tenant.Subdomain),
			attribute.String("tenant.namespace", tenant.Namespace),
		),
	)
	defer span.End()

	err := p.next.Provision(ctx, tenant, admin)
	recordError(span, err)
	return err
}
