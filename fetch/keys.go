package fetch

import (
	"strconv"
	"strings"
)

// Key prefixes. A key must capture every parameter that changes the result.
const (
	profilePrefix     = "profile:"
	scorePrefix       = "score:"
	credentialsPrefix = "credentials:"
	leaderboardPrefix = "leaderboard:"
)

// normalizeAddress lower-cases a wallet address so "0xABC" and "0xabc"
// share one cache entry.
func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ProfileKey is the key for a builder profile.
func ProfileKey(addr string) string { return profilePrefix + normalizeAddress(addr) }

// ScoreKey is the key for a builder score.
func ScoreKey(addr string) string { return scorePrefix + normalizeAddress(addr) }

// CredentialsKey is the key for a builder's credential list.
func CredentialsKey(addr string) string { return credentialsPrefix + normalizeAddress(addr) }

// LeaderboardKey is the key for one leaderboard page.
func LeaderboardKey(page, perPage int) string {
	return leaderboardPrefix + strconv.Itoa(page) + ":" + strconv.Itoa(perPage)
}
