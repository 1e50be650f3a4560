package api

import (
	"net"
	"net/http"
	"strings"
)

var remoteIPHeaders = []string{
	"x-vince-ip", "cf-connecting-ip", "b-forwarded-for",
	"X-Real-IP", "X-Forwarded-For", "X-Client-IP",
}

// remoteIP returns the client address from the first proxy header that is
// set, falling back to the connection address. Unparseable values give "".
func remoteIP(r *http.Request) string {
	var raw string
	for _, v := range remoteIPHeaders {
		if raw = r.Header.Get(v); raw != "" {
			break
		}
	}
	if raw == "" {
		raw = r.RemoteAddr
	}
	// X-Forwarded-For lists the client first.
	raw, _, _ = strings.Cut(raw, ",")
	raw = strings.TrimSpace(raw)
	host, _, err := net.SplitHostPort(raw)
	if err != nil {
		host = raw
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	return ip.String()
}
