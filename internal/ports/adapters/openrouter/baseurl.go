package openrouter

import (
	"net"
	"net/url"
	"strings"

	"github.com/forPelevin/clipscout/internal/apperr"
)

const defaultBaseURL = "https://openrouter.ai"

var defaultAllowedHosts = map[string]struct{}{
	"openrouter.ai":     {},
	"api.openrouter.ai": {},
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL accepts only absolute https URLs whose host is allow-listed.
// The API key is sent to this host, so anything looser is a config error.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL)

	u, err := url.Parse(baseURL)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInput, "invalid OPENROUTER_BASE_URL")
	}
	switch {
	case !u.IsAbs() || u.Hostname() == "":
		return badBaseURL(baseURL, "absolute URL with host is required")
	case u.User != nil:
		return badBaseURL(baseURL, "userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "":
		return badBaseURL(baseURL, "query and fragment are not allowed")
	case !strings.EqualFold(u.Scheme, "https"):
		return badBaseURL(baseURL, "https is required")
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := allowedHostSet(allowedHosts)[host]; !ok {
		return badBaseURL(baseURL, "host \""+host+"\" is not in OPENROUTER_ALLOWED_HOSTS")
	}
	return nil
}

func badBaseURL(baseURL, reason string) error {
	return apperr.Newf(apperr.CodeInput, "invalid OPENROUTER_BASE_URL %q: %s", baseURL, reason)
}

// allowedHostSet lowercases entries and strips schemes, slashes and ports.
// An empty result falls back to the public OpenRouter hosts.
func allowedHostSet(hosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
		v = strings.Trim(v, "/")
		if host, _, err := net.SplitHostPort(v); err == nil {
			v = host
		}
		if v != "" {
			out[v] = struct{}{}
		}
	}
	if len(out) == 0 {
		return defaultAllowedHosts
	}
	return out
}
