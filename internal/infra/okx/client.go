package okx

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
	"strings"
	"time"

	"hedge_go/internal/domain"
	"hedge_go/internal/infra"
)

const (
	venueName = "okx"

	pathBooks      = "/api/v5/market/books"
	pathPlaceOrder = "/api/v5/trade/order"
)

// Client is the OKX V5 REST client for USDT-margined swaps. It implements domain.Venue.
type Client struct {
	baseURL    string
	depth      int
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

func NewClient(cfg infra.VenueConfig) *Client {
	depth := cfg.Depth
	if depth <= 0 {
		depth = 5
	}
	return &Client{
		baseURL:    cfg.RestURL,
		depth:      depth,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		signer:     NewSigner(cfg.APIKey, cfg.APISecret, cfg.Passphrase),
		logger:     slog.Default().With("module", "okx_client"),
	}
}

func (c *Client) Name() string { return venueName }

// InstID maps a unified symbol such as BTCUSDT to BTC-USDT-SWAP.
func InstID(symbol string) string {
	if strings.Contains(symbol, "-") {
		return symbol
	}
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return base + "-" + quote + "-SWAP"
		}
	}
	return symbol
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type bookData struct {
	Asks [][]string `json:"asks"` // [price, size, deprecated, orders]
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

func (c *Client) OrderBook(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	q := url.Values{}
	q.Set("instId", InstID(symbol))
	q.Set("sz", strconv.Itoa(c.depth))

	var data []bookData
	if err := c.call(ctx, http.MethodGet, pathBooks+"?"+q.Encode(), nil, false, &data); err != nil {
		return domain.OrderBookSnapshot{}, &domain.DataUnavailableError{Source: venueName, Symbol: symbol, Err: err}
	}
	if len(data) == 0 {
		return domain.OrderBookSnapshot{}, &domain.DataUnavailableError{Source: venueName, Symbol: symbol, Err: fmt.Errorf("empty book response")}
	}

	asks, err := domain.ParseLevels(data[0].Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("okx asks: %w", err)
	}
	bids, err := domain.ParseLevels(data[0].Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("okx bids: %w", err)
	}
	return domain.NewOrderBookSnapshot(venueName, symbol, asks, bids, domain.ParseMillis(data[0].Ts, time.Now())), nil
}

type orderRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	Px      string `json:"px,omitempty"`
	ClOrdID string `json:"clOrdId,omitempty"`
}

type orderAck struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !c.signer.HasCredentials() {
		err := fmt.Errorf("okx: api credentials not configured")
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}

	body := orderRequest{
		InstID:  InstID(req.Symbol),
		TdMode:  "cross",
		Side:    req.Side.Lower(),
		OrdType: "market",
		Sz:      req.Qty.String(),
		ClOrdID: sanitizeClientID(req.ClientID),
	}
	if req.Type == domain.OrderTypeLimit {
		body.OrdType = "limit"
		body.Px = req.Price.String()
	}

	var acks []orderAck
	err := c.call(ctx, http.MethodPost, pathPlaceOrder, body, true, &acks)
	if err == nil && (len(acks) == 0 || acks[0].SCode != "0") {
		msg := "empty ack"
		if len(acks) > 0 {
			msg = fmt.Sprintf("sCode=%s sMsg=%s", acks[0].SCode, acks[0].SMsg)
		}
		err = fmt.Errorf("okx order %s: %w", msg, domain.ErrOrderRejected)
	}
	if err != nil {
		return domain.OrderResult{Status: domain.OrderStatusError, Err: err}, err
	}

	c.logger.Info("Order placed", "ord_id", acks[0].OrdID, "inst_id", body.InstID, "side", body.Side)
	return domain.OrderResult{
		Status: domain.OrderStatusSuccess,
		Fill:   &domain.FillInfo{OrderID: acks[0].OrdID, FilledQty: req.Qty},
	}, nil
}

// sanitizeClientID keeps the alphanumeric characters OKX accepts, max 32.
func sanitizeClientID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}

// call sends the request and decodes envelope.data into out. requestPath
// includes any query string.
func (c *Client) call(ctx context.Context, method, requestPath string, body interface{}, signed bool, out interface{}) error {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(b)
		bodyStr = string(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	if signed {
		for k, v := range c.signer.Headers(method, requestPath, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError(requestPath, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError(requestPath, err)
	}
	if resp.StatusCode >= 500 {
		return domain.NewNetworkError(requestPath, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to parse response (status=%d): %w", resp.StatusCode, err)
	}
	if env.Code != "0" {
		// Order rejections carry the reason in data[0].sMsg
		var acks []orderAck
		if json.Unmarshal(env.Data, &acks) == nil && len(acks) > 0 && acks[0].SMsg != "" {
			return fmt.Errorf("okx error code=%s msg=%s: %w", acks[0].SCode, acks[0].SMsg, domain.ErrOrderRejected)
		}
		return fmt.Errorf("okx error code=%s msg=%s: %w", env.Code, env.Msg, domain.ErrOrderRejected)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
