package ws

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// originPolicy is the browser Origin allow-list applied at upgrade time.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			p.allowAll = true
		default:
			normalized, ok := normalizeOrigin(trimmed)
			if !ok {
				zap.L().Warn("ws.invalid_origin_config", zap.String("origin", origin))
				continue
			}
			p.allowed[normalized] = struct{}{}
		}
	}
	if len(p.allowed) == 0 {
		p.allowAll = true
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check lets through native clients that send no Origin at all.
func (p *originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}
	zap.L().Warn("ws.origin_blocked", zap.String("origin", header))
	return false
}
