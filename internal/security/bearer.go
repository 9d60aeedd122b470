package security

import (
	"net/http"
	"strings"
)

// BearerToken returns the token of an "Authorization: Bearer" header. When
// allowSubprotocol is set, browsers that cannot send headers on a socket
// upgrade may pass it as "Sec-WebSocket-Protocol: bearer, <token>".
func BearerToken(r *http.Request, allowSubprotocol bool) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if found && strings.EqualFold(scheme, "bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	if !allowSubprotocol {
		return "", false
	}

	var protocols []string
	for _, p := range strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			protocols = append(protocols, p)
		}
	}
	if len(protocols) >= 2 && strings.EqualFold(protocols[0], "bearer") {
		return protocols[1], true
	}
	return "", false
}
