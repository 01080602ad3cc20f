package api

import (
	"net"
	"net/http"
)

// AdminAuth checks the static admin credentials that gate every ops
// endpoint. Tokens come from SETTINGS_ADMIN_TOKEN and
// CI_SETTINGS_ADMIN_TOKEN; with none configured, access is restricted to
// loopback callers, which keeps a bare local dev setup usable.
type AdminAuth struct {
	tokens map[string]struct{}
}

func NewAdminAuth(tokens ...string) *AdminAuth {
	a := &AdminAuth{tokens: make(map[string]struct{})}
	for _, t := range tokens {
		if t != "" {
			a.tokens[t] = struct{}{}
		}
	}

	return a
}

// IsAdmin accepts the token from the X-Admin-Token header or the
// admin_token query parameter; the query form exists because EventSource
// cannot set headers.
func (a *AdminAuth) IsAdmin(r *http.Request) bool {
	if len(a.tokens) == 0 {
		return isLoopback(r.RemoteAddr)
	}

	if t := r.Header.Get("X-Admin-Token"); t != "" {
		if _, ok := a.tokens[t]; ok {
			return true
		}
	}

	if t := r.URL.Query().Get("admin_token"); t != "" {
		if _, ok := a.tokens[t]; ok {
			return true
		}
	}

	return false
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	if host == "localhost" || host == "" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}
