// Package util contains helper functions used around the code.
package util

import "strings"

// In returns true if s is found in ss, false otherwise
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}

	return false
}

// NormAddress returns the canonical form of a hex address: trimmed and lower case.
func NormAddress(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}

// NormAddresses normalises addrs dropping empty and repeated entries, keeping the first appearance order.
func NormAddresses(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))

	for _, a := range addrs {
		a = NormAddress(a)
		if a == "" {
			continue
		}

		if _, ok := seen[a]; ok {
			continue
		}

		seen[a] = struct{}{}
		out = append(out, a)
	}

	return out
}
