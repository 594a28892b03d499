package market

import "strings"

// Symbol is a canonical short asset code from the fixed tracked basket.
type Symbol string

// Basket is the fixed set of tracked symbols. Cache state is allocated for
// every entry at startup and lives for the process lifetime.
var Basket = []Symbol{
	"BTC", "ETH", "SOL", "XRP", "ADA", "DOGE",
	"AVAX", "DOT", "LINK", "LTC", "BNB", "TRX",
}

var basketSet = func() map[Symbol]struct{} {
	m := make(map[Symbol]struct{}, len(Basket))
	for _, s := range Basket {
		m[s] = struct{}{}
	}
	return m
}()

func IsTracked(s Symbol) bool {
	_, ok := basketSet[s]
	return ok
}

// ProviderID maps a canonical symbol to the upstream ticker id ("BTC-USDT").
func (s Symbol) ProviderID() string {
	return string(s) + "-USDT"
}

// SymbolFromProvider resolves an upstream ticker id back to the canonical
// symbol. Unknown ids return false; callers drop those ticks silently.
func SymbolFromProvider(id string) (Symbol, bool) {
	base, _, found := strings.Cut(strings.ToUpper(strings.TrimSpace(id)), "-")
	if !found {
		return "", false
	}
	sym := Symbol(base)
	if !IsTracked(sym) {
		return "", false
	}
	return sym, true
}
