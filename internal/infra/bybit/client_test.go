package bybit

import (
	"encoding/json"
	"errors"
	"testing"

	"hedge_go/internal/domain"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
)

func serverResponse(t *testing.T, body string) *bybit_api.ServerResponse {
	t.Helper()
	var resp bybit_api.ServerResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return &resp
}

func TestParseOrderBook(t *testing.T) {
	resp := serverResponse(t, `{"retCode":0,"retMsg":"OK","result":{
		"s":"BTCUSDT",
		"a":[["65010.5","0.3"],["65000","1.5"]],
		"b":[["64990","2"],["64995","0"]],
		"ts":1700000000000,"u":42}}`)

	book, err := parseOrderBook("BTCUSDT", resp)
	if err != nil {
		t.Fatalf("parseOrderBook failed: %v", err)
	}
	if book.Venue != "bybit" {
		t.Errorf("Expected venue bybit, got %s", book.Venue)
	}
	best, _ := book.BestPrice(domain.SideBuy)
	if !best.Equal(decimal.NewFromInt(65000)) {
		t.Errorf("Expected best ask 65000, got %s", best)
	}
	// Zero-size level is dropped
	if len(book.Bids) != 1 {
		t.Errorf("Expected 1 bid, got %d", len(book.Bids))
	}
	if book.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("Unexpected timestamp %v", book.Timestamp)
	}
}

func TestDecodeResult_Errors(t *testing.T) {
	var out bookResult
	if err := decodeResult("not a response", &out); err == nil {
		t.Error("Expected error for wrong type")
	}

	resp := serverResponse(t, `{"retCode":10001,"retMsg":"params error","result":{}}`)
	if err := decodeResult(resp, &out); !errors.Is(err, domain.ErrOrderRejected) {
		t.Errorf("Expected ErrOrderRejected, got %v", err)
	}
}

func TestOrderParams(t *testing.T) {
	market := orderParams("linear", domain.OrderRequest{
		ClientID: "hedge-1",
		Symbol:   "BTCUSDT",
		Side:     domain.SideSell,
		Type:     domain.OrderTypeMarket,
		Qty:      decimal.RequireFromString("0.010"),
	})
	if market["side"] != "Sell" || market["orderType"] != "Market" || market["qty"] != "0.01" {
		t.Errorf("Unexpected market params %v", market)
	}
	if market["orderLinkId"] != "hedge-1" {
		t.Errorf("Expected orderLinkId, got %v", market["orderLinkId"])
	}
	if _, ok := market["price"]; ok {
		t.Error("Market order must not carry a price")
	}

	limit := orderParams("linear", domain.OrderRequest{
		Symbol: "ETHUSDT",
		Side:   domain.SideBuy,
		Type:   domain.OrderTypeLimit,
		Qty:    decimal.NewFromInt(1),
		Price:  decimal.RequireFromString("3000.5"),
	})
	if limit["orderType"] != "Limit" || limit["price"] != "3000.5" || limit["timeInForce"] != "GTC" {
		t.Errorf("Unexpected limit params %v", limit)
	}
}

func TestClient_ImplementsVenue(t *testing.T) {
	var _ domain.Venue = (*Client)(nil)
}
