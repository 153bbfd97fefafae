package ingest

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var amountRegex = regexp.MustCompile(`((?:[$€£]|(?i:usd|eur)\s?)\s*)?(\d[\d,]*(?:\.\d+)?)(\s*(?i:million)\b)?`)

// parseAmount reads a prize amount that may arrive as a JSON number, a
// numeric string or free text such as "$50,000". Zero means no amount.
func parseAmount(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case int:
		return float64(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	case string:
		return parseAmountText(x)
	default:
		return 0
	}
}

// parseAmountText takes the largest amount found in text. Amounts carrying a
// currency mark win over bare numbers, and a number directly followed by
// "million" is scaled.
func parseAmountText(text string) float64 {
	var best, bestMarked float64
	for _, m := range amountRegex.FindAllStringSubmatch(text, -1) {
		val, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			continue
		}
		if m[3] != "" {
			val *= 1_000_000
		}
		if m[1] != "" {
			bestMarked = max(bestMarked, val)
		}
		best = max(best, val)
	}
	if bestMarked > 0 {
		return bestMarked
	}
	return best
}

// formatUSD renders an amount as whole dollars with thousands separators:
// 1234.5 -> "$1,235".
func formatUSD(amount float64) string {
	n := int64(math.Round(amount))
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}

	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// formatPrize returns the display prize for an amount, or the default prize
// when there is none or it does not fit in whole dollars.
func formatPrize(v any) string {
	amount := parseAmount(v)
	if !(amount > 0 && amount < math.MaxInt64) {
		return DefaultPrize
	}
	return formatUSD(amount)
}
