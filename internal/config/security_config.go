package config

import (
	"strings"
)

// SecurityConfig holds rate limiting, CORS and TOTP settings
type SecurityConfig struct {
	// Requests per second and burst for anonymous per-IP limits
	IPRateLimit float64
	IPRateBurst int

	// Requests per minute and burst for sign-in/sign-up attempts
	AuthRateLimit float64
	AuthRateBurst int

	CORSAllowedOrigins []string

	// Proxies whose X-Forwarded-For is honoured when resolving client IPs
	TrustedProxies []string

	TOTPIssuer string
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		IPRateLimit:        float64(getEnvInt("IP_RATE_LIMIT", 10)),
		IPRateBurst:        getEnvInt("IP_RATE_BURST", 20),
		AuthRateLimit:      float64(getEnvInt("AUTH_RATE_LIMIT", 10)),
		AuthRateBurst:      getEnvInt("AUTH_RATE_BURST", 5),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", getEnv("FRONTEND_URL", "http://localhost:3000"))),
		TrustedProxies:     splitList(getEnv("TRUSTED_PROXIES", "")),
		TOTPIssuer:         getEnv("TOTP_ISSUER", "Santa's Pot"),
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
