package symbols

import "testing"

func TestLookupSuffixMatch(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		venue string
		in    string
		want  string
	}{
		{"binance", "BTCUSDT", "BTC-USDT-PERP"},
		{"binance", "ETHUSDC", "ETH-USDC-PERP"},
		{"binance", "1000SHIBUSDT", "SHIB-USDT-PERP"},
		{"bybit", "SHIB1000USDT", "SHIB-USDT-PERP"},
		{"bybit", "1000PEPEUSDT", "PEPE-USDT-PERP"},
		{"okx", "BTC-USDT-SWAP", "BTC-USDT-PERP"},
		{"kucoin", "XBT-USDTM", "BTC-USDT-PERP"},
	}
	for _, tt := range tests {
		if got := r.Lookup(tt.venue, tt.in); got != tt.want {
			t.Errorf("Lookup(%s,%s)=%s want %s", tt.venue, tt.in, got, tt.want)
		}
	}
}

func TestLookupRegistryWins(t *testing.T) {
	r := NewRegistry()
	r.Register("binance", "WEIRDPAIR", "WEIRD-USDT-PERP")
	if got := r.Lookup("binance", "WEIRDPAIR"); got != "WEIRD-USDT-PERP" {
		t.Errorf("registry entry not used: %s", got)
	}
}

func TestSplitPairDefaultQuote(t *testing.T) {
	base, quote := SplitPair("OBSCURE")
	if base != "OBSCURE" || quote != "USDT" {
		t.Errorf("SplitPair fallback = %s/%s", base, quote)
	}
}
