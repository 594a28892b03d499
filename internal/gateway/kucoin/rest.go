package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mozi/internal/logger"
	"mozi/internal/market"
)

// Client wraps the upstream REST endpoints: bullet token bootstrap, batched
// ticker quotes and candle backfill. Responses use the standard
// {code, data} envelope with stringified numbers.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	final := cfg.withDefaults()
	return &Client{
		baseURL: strings.TrimRight(final.RESTBaseURL, "/"),
		http:    &http.Client{Timeout: final.HTTPTimeout},
	}
}

type restEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, market.ErrRateLimited
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	var env restEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%s %s: decode envelope: %w", method, path, err)
	}
	if env.Code != "" && env.Code != "200000" {
		return nil, fmt.Errorf("%s %s: upstream code=%s msg=%s", method, path, env.Code, env.Msg)
	}
	return env.Data, nil
}

type bulletData struct {
	Token           string `json:"token"`
	InstanceServers []struct {
		Endpoint     string `json:"endpoint"`
		PingInterval int64  `json:"pingInterval"`
	} `json:"instanceServers"`
}

// BulletPublic requests a short-lived connection token and the websocket
// endpoint to use with it. Consumed once per connect/reconnect cycle.
func (c *Client) BulletPublic(ctx context.Context) (token, endpoint string, err error) {
	data, err := c.do(ctx, http.MethodPost, "/api/v1/bullet-public")
	if err != nil {
		return "", "", err
	}
	var bullet bulletData
	if err := json.Unmarshal(data, &bullet); err != nil {
		return "", "", fmt.Errorf("bullet-public: decode: %w", err)
	}
	if bullet.Token == "" || len(bullet.InstanceServers) == 0 {
		return "", "", fmt.Errorf("bullet-public: incomplete response")
	}
	return bullet.Token, bullet.InstanceServers[0].Endpoint, nil
}

type allTickersData struct {
	Ticker []struct {
		Symbol string `json:"symbol"`
		Last   string `json:"last"`
		Buy    string `json:"buy"`
		Sell   string `json:"sell"`
	} `json:"ticker"`
}

// AllTickers fetches current prices for the whole market in one request and
// filters down to the tracked basket. Returns market.ErrRateLimited on 429.
func (c *Client) AllTickers(ctx context.Context) (map[market.Symbol]float64, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/market/allTickers")
	if err != nil {
		return nil, err
	}
	var all allTickersData
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("allTickers: decode: %w", err)
	}
	out := make(map[market.Symbol]float64, len(market.Basket))
	for _, tk := range all.Ticker {
		sym, ok := market.SymbolFromProvider(tk.Symbol)
		if !ok {
			continue
		}
		price := parsePrice(tk.Last)
		if price <= 0 {
			price = parsePrice(tk.Sell)
		}
		if price <= 0 {
			price = parsePrice(tk.Buy)
		}
		if price > 0 {
			out[sym] = price
		}
	}
	return out, nil
}

var candleTypes = map[market.Timeframe]string{
	market.Timeframe1m:  "1min",
	market.Timeframe5m:  "5min",
	market.Timeframe15m: "15min",
	market.Timeframe1h:  "1hour",
}

// Candles fetches up to limit historical bars for one symbol and timeframe.
// Rows come back newest-first as string arrays
// [time, open, close, high, low, volume, turnover] with time in seconds;
// they are returned in provider order, the loader reorders.
func (c *Client) Candles(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Candle, error) {
	ctype, ok := candleTypes[tf]
	if !ok {
		return nil, fmt.Errorf("candles: unsupported timeframe %q", tf)
	}
	path := fmt.Sprintf("/api/v1/market/candles?type=%s&symbol=%s", ctype, sym.ProviderID())
	data, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("candles %s %s: decode: %w", sym, tf, err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			logger.Debugf("[kucoin] short candle row for %s %s, skipped", sym, tf)
			continue
		}
		sec, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		if err != nil || sec <= 0 {
			continue
		}
		out = append(out, market.Candle{
			OpenTime: sec * 1000,
			Open:     parsePrice(row[1]),
			Close:    parsePrice(row[2]),
			High:     parsePrice(row[3]),
			Low:      parsePrice(row[4]),
			Volume:   parsePrice(row[5]),
		})
	}
	return out, nil
}

func parsePrice(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
