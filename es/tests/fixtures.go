package tests

import (
	"context"

	"github.com/contextgg/go-projections/es"
)

// OrderSummaryName is the type name of the OrderSummary projection
const OrderSummaryName = "OrderSummary"

// OrderPlaced for testing
type OrderPlaced struct {
	Amount int `json:"amount" bson:"amount"`
}

// OrderShipped for testing
type OrderShipped struct{}

// OrderNoted is never handled by OrderSummary
type OrderNoted struct {
	Note string `json:"note" bson:"note"`
}

// OrderSummaryState is the read model of OrderSummary
type OrderSummaryState struct {
	Orders  int `json:"orders" bson:"orders"`
	Total   int `json:"total" bson:"total"`
	Shipped int `json:"shipped" bson:"shipped"`
}

// OrderSummary counts orders folded from any number of order streams
type OrderSummary struct {
	es.BaseProjection

	State OrderSummaryState
}

// NewOrderSummary returns a creator for the given code schema version
func NewOrderSummary(schemaVersion int) es.ProjectionCreator {
	return func(objectID string) es.Projection {
		p := &OrderSummary{}
		p.Initialize(OrderSummaryName, objectID, schemaVersion)

		es.When(p, p.placed)
		es.When(p, p.shipped)
		return p
	}
}

func (p *OrderSummary) placed(ctx context.Context, fc *es.FoldContext, e *OrderPlaced) error {
	p.State.Orders++
	p.State.Total += e.Amount
	return nil
}

func (p *OrderSummary) shipped(ctx context.Context, fc *es.FoldContext, e *OrderShipped) error {
	p.State.Shipped++
	return nil
}

// ReadModel implements es.Projection
func (p *OrderSummary) ReadModel() interface{} {
	return &p.State
}

// NewEventRegistry knows every payload of the fixtures
func NewEventRegistry() es.EventRegistry {
	registry := es.NewEventRegistry()
	registry.Set(&OrderPlaced{})
	registry.Set(&OrderShipped{})
	registry.Set(&OrderNoted{})
	return registry
}
