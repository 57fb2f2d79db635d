package domain

import "strings"

// quoteAssets are the quote currencies recognized when splitting a
// concatenated pair like BTCUSDT. Order matters: longer suffixes first.
var quoteAssets = []string{"USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "BTC", "ETH"}

// minBaseLen returns the minimum base length a quote suffix needs to be
// an unambiguous split. TUSD and BUSD also end in USD, so a symbol like
// XBTUSD or ARBUSD must not split one character early; requiring three
// base characters for those lets the scan fall through to USD.
func minBaseLen(quote string) int {
	if quote == "TUSD" || quote == "BUSD" {
		return 3
	}
	return 1
}

// DisplaySymbol normalizes a raw exchange symbol into a human-readable
// pair, e.g. BTCUSDT -> BTC/USDT, BTC-USDT-SWAP -> BTC/USDT. Returns the
// raw symbol unchanged when no known convention applies.
func DisplaySymbol(exchange Exchange, symbol string) string {
	if symbol == "" {
		return symbol
	}

	switch exchange {
	case ExchangeOKX:
		// OKX instruments are dash separated: BTC-USDT, BTC-USDT-SWAP.
		parts := strings.Split(symbol, "-")
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
	case ExchangeBitmex, ExchangeBinance, ExchangeBybit:
		up := strings.ToUpper(symbol)
		for _, quote := range quoteAssets {
			if strings.HasSuffix(up, quote) && len(up) >= len(quote)+minBaseLen(quote) {
				return up[:len(up)-len(quote)] + "/" + quote
			}
		}
	}
	return symbol
}
