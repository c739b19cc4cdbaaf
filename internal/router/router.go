// Package router implements the broker's pure, stateless topic-matching
// function and the routing/binding key validation rules. It is grounded on
// the original implementation's Router (server/route.hpp): a DIRECT/FANOUT/
// TOPIC matcher where TOPIC uses a two-dimensional dynamic program over
// binding-word count x routing-word count.
package router

import (
	"strings"

	"go.bryk.io/hive/model"
)

// Route decides whether a message published with the given routing key
// should be delivered to a binding with the given key, for the provided
// exchange type. Route is pure: it has no side effects and calling it twice
// with the same arguments yields the same result.
func Route(kind model.ExchangeType, routingKey, bindingKey string) bool {
	switch kind {
	case model.ExchangeDirect:
		return routingKey == bindingKey
	case model.ExchangeFanout:
		return true
	case model.ExchangeTopic:
		return matchTopic(bindingKey, routingKey)
	default:
		return false
	}
}

// matchTopic runs the binding-word x routing-word dynamic program described
// by the specification. Binding keys containing consecutive dots (empty
// words) are normalized by skipping the empty components.
func matchTopic(bindingKey, routingKey string) bool {
	bw := splitNonEmpty(bindingKey)
	rw := strings.Split(routingKey, ".")

	n, m := len(bw), len(rw)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true
	for i := 1; i <= n; i++ {
		if bw[i-1] != "#" {
			break
		}
		dp[i][0] = true
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch {
			case bw[i-1] == "*" || bw[i-1] == rw[j-1]:
				dp[i][j] = dp[i-1][j-1]
			case bw[i-1] == "#":
				dp[i][j] = dp[i-1][j-1] || dp[i-1][j] || dp[i][j-1]
			}
		}
	}
	return dp[n][m]
}

// splitNonEmpty splits `s` on '.' and drops empty words, so that binding
// keys containing ".." are normalized rather than rejected.
func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsLegalRoutingKey reports whether `key` only contains the characters
// permitted in a routing key: letters, digits, '.' and '_'.
func IsLegalRoutingKey(key string) bool {
	for _, ch := range key {
		if !isWordChar(ch) && ch != '.' {
			return false
		}
	}
	return true
}

// IsLegalBindingKey reports whether `key` is a well-formed binding key:
// letters, digits, '.', '_', '*' and '#' are allowed; a word may not mix a
// wildcard with other characters; and wildcards may not appear in adjacent
// words ("##", "#*", "*#" are forbidden, "**" is allowed since each '*' is
// an independent single-word slot).
func IsLegalBindingKey(key string) bool {
	for _, ch := range key {
		if !isWordChar(ch) && ch != '.' && ch != '*' && ch != '#' {
			return false
		}
	}
	words := strings.Split(key, ".")
	for _, w := range words {
		if len(w) > 1 && (strings.Contains(w, "*") || strings.Contains(w, "#")) {
			return false
		}
	}
	for i := 1; i < len(words); i++ {
		prev, cur := words[i-1], words[i]
		if cur == "#" && (prev == "#" || prev == "*") {
			return false
		}
		if cur == "*" && prev == "#" {
			return false
		}
	}
	return true
}

func isWordChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '_'
}
