package order

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-dev/storefront/pkg/eventbus"
	"github.com/storefront-dev/storefront/pkg/metrics"
	"github.com/storefront-dev/storefront/pkg/session"
)

// Sources for eventbus.OrderEvent.
const (
	SourcePush       = "push"
	SourceTransition = "transition"
)

// API is the backend surface the order logic needs.
type API interface {
	ListOrders(ctx context.Context) ([]Order, error)

	// SetOrderStatus is idempotent for a given id and status.
	SetOrderStatus(ctx context.Context, id string, status Status) (*Order, error)
}

// Service gates and dispatches status change requests. Every request is
// validated against the transition table before any network call, and the
// result is reconciled by refetching rather than trusted as final.
type Service struct {
	api     API
	bus     *eventbus.Bus
	metrics *metrics.Collector
	logger  *slog.Logger
	tracer  trace.Tracer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBus publishes reconciled orders on bus.
func WithBus(b *eventbus.Bus) ServiceOption {
	return func(s *Service) {
		s.bus = b
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service over api.
func NewService(api API, opts ...ServiceOption) *Service {
	s := &Service{
		api:    api,
		logger: slog.Default().With("component", "order"),
		tracer: otel.Tracer("storefront/order"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List fetches the caller's orders.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.api.ListOrders(ctx)
}

// RequestTransition asks the backend to move o to target on behalf of role
// and returns the backend's view of the order afterwards.
//
// A blocked transition returns a TransitionPrecondition error without
// touching the network.
func (s *Service) RequestTransition(ctx context.Context, role session.Role, o Order, target Status) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.RequestTransition",
		trace.WithAttributes(
			attribute.String("order.id", o.ID),
			attribute.String("order.from", string(o.Status)),
			attribute.String("order.to", string(target)),
			attribute.String("user.role", role.String()),
		))
	defer span.End()

	if err := Validate(role, o, target); err != nil {
		span.SetStatus(codes.Error, "precondition failed")
		s.metrics.Transition(string(target), err)
		return nil, err
	}

	updated, err := s.api.SetOrderStatus(ctx, o.ID, target)
	s.metrics.Transition(string(target), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := s.reconcile(ctx, o, target, updated)
	s.publish(result, SourceTransition)
	return result, nil
}

// reconcile refetches and returns the authoritative copy of the order,
// falling back to the PUT response when the refetch fails or misses it.
func (s *Service) reconcile(ctx context.Context, o Order, target Status, updated *Order) *Order {
	orders, err := s.api.ListOrders(ctx)
	if err != nil {
		s.logger.Warn("refetch after transition failed", "order", o.ID, "error", err)
	} else {
		for i := range orders {
			if orders[i].ID == o.ID {
				return &orders[i]
			}
		}
	}

	if updated != nil {
		return updated
	}
	fallback := o
	fallback.Status = target
	return &fallback
}

func (s *Service) publish(o *Order, source string) {
	if s.bus == nil || o == nil {
		return
	}
	eventbus.Publish(s.bus, eventbus.OrderUpdate, eventbus.OrderEvent{
		OrderID:       o.ID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Source:        source,
	})
}
