package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/infra"
)

const (
	venueName   = "bitget"
	successCode = "00000"

	pathOrderBook  = "/api/v2/spot/market/orderbook"
	pathPlaceOrder = "/api/v2/spot/trade/place-order"
)

// Client is the Bitget V2 REST API client. It implements domain.Venue.
type Client struct {
	baseURL    string
	depth      int
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// NewClient creates a new Bitget API client.
func NewClient(cfg infra.VenueConfig) *Client {
	depth := cfg.Depth
	if depth <= 0 {
		depth = 5
	}

	return &Client{
		baseURL: cfg.RestURL,
		depth:   depth,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(cfg.APIKey, cfg.APISecret, cfg.Passphrase),
		logger: slog.Default().With("module", "bitget_client"),
	}
}

func (c *Client) Name() string { return venueName }

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type orderBookData struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

// OrderBook fetches the top of the spot book.
func (c *Client) OrderBook(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", "step0")
	q.Set("limit", strconv.Itoa(c.depth))

	var data orderBookData
	if err := c.call(ctx, http.MethodGet, pathOrderBook, q.Encode(), nil, false, &data); err != nil {
		return domain.OrderBookSnapshot{}, &domain.DataUnavailableError{Source: venueName, Symbol: symbol, Err: err}
	}
	return parseOrderBook(symbol, data)
}

func parseOrderBook(symbol string, data orderBookData) (domain.OrderBookSnapshot, error) {
	asks, err := domain.ParseLevels(data.Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("bitget asks: %w", err)
	}
	bids, err := domain.ParseLevels(data.Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("bitget bids: %w", err)
	}
	ts := domain.ParseMillis(data.Ts, time.Now())
	return domain.NewOrderBookSnapshot(venueName, symbol, asks, bids, ts), nil
}

// placeOrderRequest - Internal Struct for JSON Marshaling
type placeOrderRequest struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`      // buy, sell
	OrderType     string `json:"orderType"` // limit, market
	Force         string `json:"force"`     // gtc
	Price         string `json:"price,omitempty"`
	Size          string `json:"size"`
	ClientOrderId string `json:"clientOid,omitempty"`
}

type placeOrderData struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

// PlaceOrder sends an order to the exchange.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !c.signer.HasCredentials() {
		err := fmt.Errorf("bitget: api credentials not configured")
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}

	body := placeOrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side.Lower(),
		OrderType:     "market",
		Force:         "gtc",
		Size:          req.Qty.String(),
		ClientOrderId: req.ClientID,
	}
	if req.Type == domain.OrderTypeLimit {
		body.OrderType = "limit"
		body.Price = req.Price.String()
	}

	var data placeOrderData
	if err := c.call(ctx, http.MethodPost, pathPlaceOrder, "", body, true, &data); err != nil {
		err = fmt.Errorf("bitget place order failed: %w", err)
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}

	c.logger.Info("Order Placed Successfully", "oid", data.OrderID, "client_oid", req.ClientID, "symbol", req.Symbol)
	return domain.OrderResult{
		Status: domain.OrderStatusSuccess,
		Fill:   &domain.FillInfo{OrderID: data.OrderID, FilledQty: req.Qty},
	}, nil
}

// call performs the request and decodes envelope.data into out.
func (c *Client) call(ctx context.Context, method, path, query string, body interface{}, signed bool, out interface{}) error {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonBytes)
		bodyStr = string(jsonBytes)
	}

	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	req.Header.Set("Content-Type", "application/json")

	if signed {
		for k, v := range c.signer.GenerateHeaders(method, path, query, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError(path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError(path, err)
	}
	if resp.StatusCode >= 500 {
		return domain.NewNetworkError(path, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(bodyBytes)))
	}

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return fmt.Errorf("failed to parse response (status=%d): %w", resp.StatusCode, err)
	}
	if env.Code != successCode {
		return fmt.Errorf("bitget business error: code=%s msg=%s: %w", env.Code, env.Msg, domain.ErrOrderRejected)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
