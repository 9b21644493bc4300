package models

import "strings"

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// ParseSymbols splits a comma separated list. Empty entries are dropped;
// duplicates are kept.
func ParseSymbols(input string) []string {
	parts := strings.Split(input, ",")
	symbols := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := NormalizeSymbol(part); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

// UniqueSymbols returns symbols in first-seen order without repeats.
func UniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
