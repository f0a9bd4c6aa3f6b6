package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/infra"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

const (
	venueName = "bybit"

	// DemoURL is the Bybit demo trading host
	DemoURL = "https://api-demo.bybit.com"
)

// Client adapts the Bybit V5 SDK to domain.Venue.
type Client struct {
	httpClient *bybit_api.Client
	category   string
	depth      int
	canTrade   bool
	logger     *slog.Logger
}

// NewClient creates a Bybit venue. Testnet and demo hosts take precedence
// over RestURL.
func NewClient(cfg infra.VenueConfig) *Client {
	baseURL := bybit_api.MAINNET
	switch {
	case cfg.Demo:
		baseURL = DemoURL
	case cfg.Testnet:
		baseURL = bybit_api.TESTNET
	case cfg.RestURL != "":
		baseURL = cfg.RestURL
	}

	category := cfg.Category
	if category == "" {
		category = "linear"
	}
	depth := cfg.Depth
	if depth <= 0 {
		depth = 5
	}

	return &Client{
		httpClient: bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		category:   category,
		depth:      depth,
		canTrade:   cfg.APIKey != "" && cfg.APISecret != "",
		logger:     slog.Default().With("module", "bybit_client"),
	}
}

func (c *Client) Name() string { return venueName }

// OrderBook fetches the top levels of the book over REST.
func (c *Client) OrderBook(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"limit":    c.depth,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
	if err != nil {
		return domain.OrderBookSnapshot{}, &domain.DataUnavailableError{Source: venueName, Symbol: symbol, Err: domain.NewNetworkError("orderbook", err)}
	}

	book, err := parseOrderBook(symbol, result)
	if err != nil {
		return domain.OrderBookSnapshot{}, &domain.DataUnavailableError{Source: venueName, Symbol: symbol, Err: err}
	}
	return book, nil
}

// PlaceOrder submits a market or limit order.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !c.canTrade {
		err := fmt.Errorf("bybit: api credentials not configured")
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}

	params := orderParams(c.category, req)
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		err = fmt.Errorf("failed to place order: %w", domain.NewNetworkError("place_order", err))
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}

	var placed struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult(result, &placed); err != nil {
		err = fmt.Errorf("failed to parse order response: %w", err)
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}

	c.logger.Info("Order placed", "order_id", placed.OrderID, "link_id", placed.OrderLinkID, "symbol", req.Symbol, "side", req.Side)
	return domain.OrderResult{
		Status: domain.OrderStatusSuccess,
		Fill:   &domain.FillInfo{OrderID: placed.OrderID, FilledQty: req.Qty},
	}, nil
}

func orderParams(category string, req domain.OrderRequest) map[string]interface{} {
	side := "Buy"
	if req.Side == domain.SideSell {
		side = "Sell"
	}

	params := map[string]interface{}{
		"category":  category,
		"symbol":    req.Symbol,
		"side":      side,
		"orderType": "Market",
		"qty":       req.Qty.String(),
	}
	if req.Type == domain.OrderTypeLimit {
		params["orderType"] = "Limit"
		params["price"] = req.Price.String()
		params["timeInForce"] = "GTC"
	}
	if req.ClientID != "" {
		params["orderLinkId"] = req.ClientID
	}
	return params
}

// bookResult is the V5 order book payload, shared by REST and websocket.
type bookResult struct {
	Symbol string     `json:"s"`
	Asks   [][]string `json:"a"`
	Bids   [][]string `json:"b"`
	Ts     int64      `json:"ts"`
	Update int64      `json:"u"`
	Seq    int64      `json:"seq"`
}

func parseOrderBook(symbol string, response interface{}) (domain.OrderBookSnapshot, error) {
	var res bookResult
	if err := decodeResult(response, &res); err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	asks, err := domain.ParseLevels(res.Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("asks: %w", err)
	}
	bids, err := domain.ParseLevels(res.Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("bids: %w", err)
	}

	ts := time.Now()
	if res.Ts > 0 {
		ts = time.UnixMilli(res.Ts)
	}
	return domain.NewOrderBookSnapshot(venueName, symbol, asks, bids, ts), nil
}

// decodeResult unwraps a *bybit_api.ServerResponse into out.
func decodeResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("invalid response type %T", response)
	}

	if serverResp.RetCode != 0 {
		return fmt.Errorf("API error: %s (code: %d): %w", serverResp.RetMsg, serverResp.RetCode, domain.ErrOrderRejected)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return json.Unmarshal(resultBytes, out)
}
