// Package parse turns rendered cell text and side-channel attributes into
// typed values. Every function here is total: bad input yields nil or the
// original text, never a panic.
package parse

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

var currencySymbols = []string{"US$", "$", "€", "£", "¥", "₹", "₩", "₽", "₿"}

var magnitudeSuffixes = map[byte]float64{
	'k': 1e3,
	'm': 1e6,
	'b': 1e9,
}

// Currency parses a price-like cell. A non-empty raw side channel wins over
// the display text; an unparsable raw value is returned as-is.
func Currency(display, raw string) (v any) {
	defer recoverNil(&v)

	raw = strings.TrimSpace(raw)
	if raw != "" {
		if n, ok := Number(raw); ok {
			return n
		}
		return raw
	}

	display = strings.TrimSpace(display)
	if display == "" {
		return nil
	}
	if n, ok := Number(stripCurrency(display)); ok {
		return n
	}
	return display
}

// Magnitude parses display text such as "$1.2b", "12.3K" or "1,234.50".
// Returns nil when nothing numeric can be read.
func Magnitude(text string) (v any) {
	defer recoverNil(&v)

	s := strings.TrimSpace(stripCurrency(text))
	if s == "" {
		return nil
	}

	last := strings.ToLower(s[len(s)-1:])[0]
	if mult, ok := magnitudeSuffixes[last]; ok {
		n, ok := Number(s[:len(s)-1])
		if !ok || math.IsInf(n*mult, 0) {
			return nil
		}
		return n * mult
	}

	n, ok := Number(s)
	if !ok {
		return nil
	}
	return n
}

// Percent reads key from a small JSON payload (e.g. data-json="{\"usd\":1.2}").
// A non-numeric sub-field is returned raw; a missing or malformed payload is nil.
func Percent(display, payload, key string) (v any) {
	defer recoverNil(&v)

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}

	var obj map[string]any
	if err := json5.Unmarshal([]byte(payload), &obj); err != nil {
		return nil
	}

	val, ok := obj[key]
	if !ok || val == nil {
		return nil
	}

	switch t := val.(type) {
	case float64:
		return t
	case string:
		if n, ok := Number(t); ok {
			return n
		}
		return t
	default:
		return nil
	}
}

// Rank parses a rank cell: a number when numeric, the raw text otherwise
func Rank(text string) any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if n, ok := Number(text); ok {
		return n
	}
	return text
}

// Int reads the leading integer of text ("12." -> 12). Nil when there is none
// or the value is zero.
func Int(text string) any {
	text = strings.TrimSpace(text)
	end := 0
	for end < len(text) {
		c := text[end]
		if (c >= '0' && c <= '9') || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	n, err := strconv.Atoi(text[:end])
	if err != nil || n == 0 {
		return nil
	}
	return float64(n)
}

// Slug returns the last non-empty path segment of a link target
func Slug(href string) any {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	} else if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return nil
	}
	seg := path[strings.LastIndex(path, "/")+1:]
	if seg == "" {
		return nil
	}
	return seg
}

// Text trims text and returns nil when it is empty
func Text(text string) any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return text
}

// Lower is Text lower-cased
func Lower(text string) any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return strings.ToLower(text)
}

// Number parses a plain decimal after dropping whitespace and thousands separators
func Number(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\n', '\u00a0', '_':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func stripCurrency(s string) string {
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	return strings.TrimSpace(s)
}

func recoverNil(v *any) {
	if r := recover(); r != nil {
		*v = nil
	}
}
