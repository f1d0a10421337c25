package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Client fetches the current ticker price from a Binance-compatible market
// data API, rotating across endpoints after repeated failures.
type Client struct {
	endpoints     []string
	symbol        string
	httpClient    *http.Client
	failThreshold int

	mu        sync.Mutex
	index     int
	failCount int
}

func NewClient(endpoints []string, symbol string, failThreshold int) (*Client, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("price feed endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	return &Client{
		endpoints:     list,
		symbol:        symbol,
		httpClient:    &http.Client{Timeout: 4 * time.Second},
		failThreshold: failThreshold,
	}, nil
}

func (c *Client) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	var lastErr error
	for attempts := 0; attempts < len(c.endpoints); attempts++ {
		endpoint := c.currentEndpoint()
		price, err := c.fetchFrom(ctx, endpoint)
		if err == nil {
			c.noteSuccess()
			return price, nil
		}
		lastErr = err
		if c.noteFailure() {
			c.rotate()
		}
	}
	return decimal.Zero, lastErr
}

func (c *Client) fetchFrom(ctx context.Context, endpoint string) (decimal.Decimal, error) {
	u, err := url.Parse(endpoint + "/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, err
	}
	values := url.Values{}
	values.Set("symbol", c.symbol)
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return decimal.Zero, fmt.Errorf("ticker http status %d: %s", resp.StatusCode, msg)
		}
		return decimal.Zero, fmt.Errorf("ticker http status %d", resp.StatusCode)
	}

	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker price %q: %w", out.Price, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("ticker price %s is not positive", price)
	}
	return price, nil
}

func (c *Client) currentEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.index]
}

func (c *Client) noteSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failCount = 0
}

func (c *Client) noteFailure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failCount++
	return c.failCount >= c.failThreshold
}

func (c *Client) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = (c.index + 1) % len(c.endpoints)
	c.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
