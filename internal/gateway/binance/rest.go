// Package binance connects the execution engine to the Binance spot
// API: market data and user-data streams over WebSocket, order entry
// over signed REST.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// RestClient is a minimal signed client for the spot order-entry and
// account endpoints.
type RestClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

// NewRestClient creates a REST client for the given base URL and keys.
func NewRestClient(baseURL, apiKey, apiSecret string) *RestClient {
	return &RestClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError is the venue's error envelope.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e apiError) Error() string {
	return fmt.Sprintf("binance: code %d: %s", e.Code, e.Message)
}

// CreateOrder places a maker-only (LIMIT_MAKER) order.
func (c *RestClient) CreateOrder(ctx context.Context, symbol string, req domain.CreateOrder) (domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(req.Side))
	params.Set("type", "LIMIT_MAKER")
	params.Set("price", req.Price.String())
	params.Set("quantity", req.Quantity.String())
	params.Set("newClientOrderId", req.ClientOrderID)

	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
	}
	if err := c.signedCall(ctx, http.MethodPost, "/api/v3/order", params, &resp); err != nil {
		return domain.Order{}, err
	}
	price, _ := decimal.NewFromString(resp.Price)
	quantity, _ := decimal.NewFromString(resp.OrigQty)
	filled, _ := decimal.NewFromString(resp.ExecutedQty)
	return domain.Order{
		OrderID:                  strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID:            resp.ClientOrderID,
		Side:                     req.Side,
		LimitPrice:               price,
		Quantity:                 quantity,
		CumulativeFilledQuantity: filled,
		RemainingQuantity:        quantity.Sub(filled),
		Status:                   mapOrderStatus(resp.Status),
	}, nil
}

// CancelOpenOrders cancels every open order on the symbol. A venue
// response reporting no open orders is treated as an empty success.
func (c *RestClient) CancelOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp []struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Side          string `json:"side"`
		Status        string `json:"status"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
	}
	err := c.signedCall(ctx, http.MethodDelete, "/api/v3/openOrders", params, &resp)
	if err != nil {
		var apiErr apiError
		// -2011: "Unknown order sent" covers cancelling with nothing open.
		if asAPIError(err, &apiErr) && apiErr.Code == -2011 {
			return nil, nil
		}
		return nil, err
	}

	orders := make([]domain.Order, 0, len(resp))
	for _, o := range resp {
		price, _ := decimal.NewFromString(o.Price)
		quantity, _ := decimal.NewFromString(o.OrigQty)
		filled, _ := decimal.NewFromString(o.ExecutedQty)
		orders = append(orders, domain.Order{
			OrderID:                  strconv.FormatInt(o.OrderID, 10),
			ClientOrderID:            o.ClientOrderID,
			Side:                     domain.Side(o.Side),
			LimitPrice:               price,
			Quantity:                 quantity,
			CumulativeFilledQuantity: filled,
			RemainingQuantity:        quantity.Sub(filled),
			Status:                   mapOrderStatus(o.Status),
		})
	}
	return orders, nil
}

// AccountBalances returns the free balance per asset.
func (c *RestClient) AccountBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := c.signedCall(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &resp); err != nil {
		return nil, err
	}
	balances := make(map[string]decimal.Decimal, len(resp.Balances))
	for _, b := range resp.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		balances[b.Asset] = free
	}
	return balances, nil
}

// StartUserDataStream obtains a listen key for the user-data WebSocket.
func (c *RestClient) StartUserDataStream(ctx context.Context) (string, error) {
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := c.keyedCall(ctx, http.MethodPost, "/api/v3/userDataStream", url.Values{}, &resp); err != nil {
		return "", err
	}
	return resp.ListenKey, nil
}

// KeepAliveUserDataStream extends the listen key's lifetime.
func (c *RestClient) KeepAliveUserDataStream(ctx context.Context, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)
	return c.keyedCall(ctx, http.MethodPut, "/api/v3/userDataStream", params, nil)
}

// signedCall attaches a timestamp and HMAC signature, then performs the
// request with the API key header.
func (c *RestClient) signedCall(ctx context.Context, method, path string, params url.Values, out any) error {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return c.keyedCall(ctx, method, path, params, out)
}

// keyedCall performs a request authenticated by API key only.
func (c *RestClient) keyedCall(ctx context.Context, method, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Message != "" {
			return apiErr
		}
		return fmt.Errorf("binance: %s %s: status %d: %s", method, path, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance: decode response: %w", err)
	}
	return nil
}

func asAPIError(err error, target *apiError) bool {
	e, ok := err.(apiError)
	if ok {
		*target = e
	}
	return ok
}

// mapOrderStatus translates venue statuses onto the engine's lifecycle.
func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW":
		return domain.OrderStatusNew
	case "PARTIALLY_FILLED":
		return domain.OrderStatusPartiallyFilled
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "EXPIRED", "REJECTED":
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatus(s)
	}
}
