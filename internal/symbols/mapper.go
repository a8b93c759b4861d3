package symbols

import "strings"

// knownQuotes are the quote assets tried during suffix matching, most
// specific first so USDT wins over USD for BTCUSDT.
var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH"}

const defaultQuote = "USDT"

// Registry maps venue-specific symbols to canonical ids, populated from the
// instrument universe at startup. Lookups fall back to suffix matching so
// instruments that appear mid-session still normalize.
type Registry struct {
	byVenue map[string]map[string]string
}

func NewRegistry() *Registry {
	return &Registry{byVenue: make(map[string]map[string]string)}
}

// Register records the canonical id for one venue symbol.
func (r *Registry) Register(venue, venueSymbol, canonical string) {
	m, ok := r.byVenue[venue]
	if !ok {
		m = make(map[string]string)
		r.byVenue[venue] = m
	}
	m[venueSymbol] = canonical
}

// Lookup resolves a venue symbol to its canonical id. Registry entries win;
// otherwise the symbol is split by quote-asset suffix match and, failing
// that, the default quote is assumed.
func (r *Registry) Lookup(venue, venueSymbol string) string {
	if m, ok := r.byVenue[venue]; ok {
		if canonical, ok := m[venueSymbol]; ok {
			return canonical
		}
	}
	base, quote := SplitPair(stripVenueDecorations(venue, venueSymbol))
	return Canonical(base, quote)
}

// Canonical builds the venue-independent instrument id {BASE}-{QUOTE}-{TYPE}.
// Only perpetuals flow through this system, so the type is fixed.
func Canonical(base, quote string) string {
	return base + "-" + quote + "-PERP"
}

// SplitPair separates a concatenated pair like SOLUSDT into base and quote
// using the known quote assets. Unrecognized suffixes get the default quote.
func SplitPair(sym string) (base, quote string) {
	sym = strings.ToUpper(sym)
	for _, q := range knownQuotes {
		if strings.HasSuffix(sym, q) && len(sym) > len(q) {
			return strings.TrimSuffix(sym, q), q
		}
	}
	return sym, defaultQuote
}

// stripVenueDecorations removes venue-specific prefixes and separators so the
// remainder is a plain BASEQUOTE pair.
func stripVenueDecorations(venue, sym string) string {
	sym = strings.ToUpper(sym)
	switch strings.ToLower(venue) {
	case "bybit":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	case "binance":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case "okx":
		sym = strings.TrimSuffix(sym, "-SWAP")
		sym = strings.ReplaceAll(sym, "-", "")
	case "kucoin":
		sym = strings.ReplaceAll(sym, "-", "")
		sym = strings.TrimSuffix(sym, "M")
		if strings.HasPrefix(sym, "XBT") {
			sym = "BTC" + sym[3:]
		}
	}
	return sym
}
