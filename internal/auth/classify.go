package auth

import (
	"strings"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
	"github.com/kestrelmoor/harvester-cli/internal/config"
)

// Classify maps raw page signals to an authentication state. It is a pure
// function; every observation it needs arrives in sig.
//
// Precedence: rate limiting wins over everything, a login wall wins over
// application chrome, and ambiguity stays Unknown rather than degrading to
// Authenticated.
func Classify(sig schemas.PageSignals, cfg config.AuthConfig) schemas.AuthState {
	if sig.HasRateLimitBanner || matchesAny(sig.URL, cfg.Patterns.RateLimitURLFragments) {
		return schemas.AuthRateLimited
	}
	if sig.HasLoginForm || matchesAny(sig.URL, cfg.Patterns.LoginURLFragments) {
		return schemas.AuthUnauthenticated
	}
	if sig.HasAuthedChrome {
		return schemas.AuthAuthenticated
	}
	return schemas.AuthUnknown
}

func matchesAny(url string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(url, f) {
			return true
		}
	}
	return false
}
