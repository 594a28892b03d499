package kucoin

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"mozi/internal/market"
)

// tickerTopic subscribes every tracked pair through one logical channel
// rather than one subscription per symbol.
const tickerTopic = "/market/ticker:all"

// wsEnvelope is the tagged wire shape for every inbound frame. Type selects
// the variant; anything unrecognized falls through to the ignored arm.
type wsEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

type wsRequest struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Topic          string `json:"topic,omitempty"`
	PrivateChannel bool   `json:"privateChannel,omitempty"`
	Response       bool   `json:"response,omitempty"`
}

type frameKind int

const (
	frameIgnored frameKind = iota
	frameWelcome
	framePong
	frameTick
)

// classifyFrame decodes one raw websocket frame. Malformed frames and
// unknown types classify as ignored; a single bad message never affects
// connection state.
func classifyFrame(raw []byte) (frameKind, market.TickEvent, bool) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return frameIgnored, market.TickEvent{}, false
	}
	switch env.Type {
	case "welcome":
		return frameWelcome, market.TickEvent{}, false
	case "pong":
		return framePong, market.TickEvent{}, false
	case "message":
		evt, ok := tickFromMessage(env)
		return frameTick, evt, ok
	default:
		return frameIgnored, market.TickEvent{}, false
	}
}

// tickFromMessage resolves the provider symbol and extracts a usable price.
// Some channels omit fields, so the price falls back best-ask -> last trade
// -> best-bid. Unknown symbols and unusable prices are dropped, not errored.
func tickFromMessage(env wsEnvelope) (market.TickEvent, bool) {
	id := env.Subject
	if id == "" || strings.EqualFold(id, "trade.ticker") {
		// topic form "/market/ticker:BTC-USDT"
		if _, after, found := strings.Cut(env.Topic, ":"); found {
			id = after
		}
	}
	sym, ok := market.SymbolFromProvider(id)
	if !ok {
		return market.TickEvent{}, false
	}

	price := firstPositive(
		gjson.GetBytes(env.Data, "bestAsk").Float(),
		gjson.GetBytes(env.Data, "price").Float(),
		gjson.GetBytes(env.Data, "bestBid").Float(),
	)
	if price <= 0 {
		return market.TickEvent{}, false
	}

	ts := gjson.GetBytes(env.Data, "time").Int()
	return market.TickEvent{
		Symbol: sym,
		Price:  price,
		Time:   ts,
		Source: market.SourceFeed,
	}, true
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}
