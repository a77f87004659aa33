package broker

import (
	"time"

	"github.com/quantbay/optexec/pkg/broker/model"
)

// Slice splits an oversized parent order into exchange-compliant children.
// freezeQty is the exchange cap in lots; no child ever exceeds
// lotSize*freezeQty units. Children are appended to the parent in slice order.
func Slice(order *model.Order, lotSize, freezeQty int64) ([]*model.ChildOrder, error) {
	if order.Quantity == 0 {
		return nil, ErrZeroQuantity
	}
	if order.Quantity%lotSize != 0 {
		return nil, ErrFractionalLots
	}

	lots := order.Quantity / lotSize
	fullSlices := lots / freezeQty
	remainder := lots % freezeQty

	n := fullSlices
	if remainder != 0 {
		n++
	}
	children := make([]*model.ChildOrder, 0, n)

	for i := int64(0); i < fullSlices; i++ {
		children = append(children, newChild(order, int(i), lotSize*freezeQty))
	}
	if remainder != 0 {
		children = append(children, newChild(order, int(fullSlices), remainder*lotSize))
	}

	order.Children = append(order.Children, children...)
	return children, nil
}

func newChild(order *model.Order, index int, qty int64) *model.ChildOrder {
	return &model.ChildOrder{
		Index:           index,
		ParentID:        order.ID,
		StrategyID:      order.StrategyID,
		InstrumentToken: order.InstrumentToken,
		Product:         order.Product,
		Type:            order.Type,
		Side:            order.Side,
		Quantity:        qty,
		LimitPrice:      order.LimitPrice,
		TriggerPrice:    order.TriggerPrice,
		Status:          model.OrderStatusCreated,
		UpdatedAt:       time.Now(),
	}
}
