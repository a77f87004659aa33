package broker

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/broker/model"
)

// Broker is the capability interface every venue implements. Callers must not
// assume success without checking the returned error; write calls are never
// retried because the venue offers no idempotency key.
type Broker interface {
	Name() string

	// Login exchanges credentials for a venue session.
	Login(ctx context.Context) error

	PlaceOrder(ctx context.Context, child *model.ChildOrder) (venueOrderID string, err error)
	ModifyOrder(ctx context.Context, venueOrderID string, mod model.Modify) error
	CancelOrder(ctx context.Context, venueOrderID string) error

	QueryOrder(ctx context.Context, venueOrderID string) (model.OrderUpdate, error)
	QueryOrderBook(ctx context.Context) ([]model.OrderUpdate, error)

	// QueryFunds degrades gracefully: on transport failure implementations
	// return the last successfully cached values.
	QueryFunds(ctx context.Context) (model.Funds, error)
}

// Factory constructs a venue adapter from startup configuration.
type Factory func(ctx context.Context) (Broker, error)

// Registry maps venue identifiers to adapter factories, resolved once at
// startup. An unknown venue is a configuration error.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) Resolve(ctx context.Context, name string) (Broker, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, NewConfigError("broker %q is not supported", name)
	}
	return f(ctx)
}

// Submit slices the parent order against the exchange freeze quantity and
// places every child. A failed placement is surfaced immediately; already
// placed children are left to the reconciler; placements are not resubmitted.
func Submit(ctx context.Context, b Broker, order *model.Order, lotSize, freezeQty int64) error {
	children, err := Slice(order, lotSize, freezeQty)
	if err != nil {
		return err
	}

	zap.S().Infow("placing order", "order_id", order.ID, "children", len(children), "qty", order.Quantity)
	for _, child := range children {
		child.Status = model.OrderStatusSent
		venueOrderID, err := b.PlaceOrder(ctx, child)
		if err != nil {
			zap.S().Errorw("place child order failed", "order_id", order.ID, "index", child.Index, "err", err)
			return err
		}
		child.VenueOrderID = venueOrderID
		child.Status = model.OrderStatusWorking
	}
	return nil
}
