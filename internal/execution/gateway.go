package execution

import (
	"context"
	"fmt"
	"sort"

	"hedge_go/internal/domain"
)

// Gateway dispatches orders to the venue named in the request.
type Gateway struct {
	venues map[string]domain.Venue
}

// NewGateway registers venues by their Name().
func NewGateway(venues ...domain.Venue) *Gateway {
	g := &Gateway{venues: make(map[string]domain.Venue, len(venues))}
	for _, v := range venues {
		g.venues[v.Name()] = v
	}
	return g
}

// PlaceOrder implements domain.OrderPlacer.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	v, ok := g.venues[req.Venue]
	if !ok {
		err := fmt.Errorf("%w: %s", domain.ErrUnknownVenue, req.Venue)
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}
	return v.PlaceOrder(ctx, req)
}

// Sources exposes every venue as a book source keyed by name.
func (g *Gateway) Sources() map[string]domain.OrderBookSource {
	out := make(map[string]domain.OrderBookSource, len(g.venues))
	for name, v := range g.venues {
		out[name] = v
	}
	return out
}

// Names returns the registered venue names, sorted.
func (g *Gateway) Names() []string {
	names := make([]string, 0, len(g.venues))
	for name := range g.venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
