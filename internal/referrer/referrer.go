package referrer

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

type Info struct {
	// Domain is the registrable domain of the referrer. Empty for direct
	// traffic.
	Domain string
	// Source is a human friendly name of where the visitor came from.
	Source   string
	SameSite bool
}

// Ref is the page independent part of a referrer. It depends only on the
// referrer url and is safe to cache.
type Ref struct {
	Host   string
	Domain string
	// Source is the known referrer name, or Domain.
	Source string
}

// Parse parses a referrer url. An empty referrer is direct traffic and
// returns the zero Ref.
func Parse(referrer string) (Ref, error) {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return Ref{}, nil
	}
	r, err := url.Parse(referrer)
	if err != nil {
		return Ref{}, err
	}
	if r.Host == "" {
		// bare host without scheme, e.g. "google.com/search"
		if r, err = url.Parse("//" + referrer); err != nil {
			return Ref{}, err
		}
	}
	host := strings.TrimPrefix(strings.ToLower(hostname(r.Host)), "www.")
	o := Ref{Host: host, Domain: Domain(host)}
	o.Source = Source(host, o.Domain)
	return o, nil
}

// Info combines r with the page url. Campaign parameters on the page url
// take precedence over the referrer when naming the source.
func (r Ref) Info(page string) Info {
	o := Info{Domain: r.Domain}
	var pageDomain string
	if page != "" {
		if p, err := url.Parse(page); err == nil {
			pageDomain = Domain(p.Host)
			q := p.Query()
			o.Source = firstNonEmpty(q.Get("utm_source"), q.Get("source"), q.Get("ref"))
		}
	}
	o.SameSite = r.Domain != "" && r.Domain == pageDomain
	if o.Source == "" && !o.SameSite {
		o.Source = r.Source
	}
	return o
}

// Resolve parses the referrer url against the page url.
func Resolve(referrer, page string) (Info, error) {
	r, err := Parse(referrer)
	if err != nil {
		return Ref{}.Info(page), err
	}
	return r.Info(page), nil
}

// Domain returns the registrable domain (eTLD+1) of host. IP addresses and
// hosts without a known public suffix are returned lower cased as is.
func Domain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(hostname(host)), ".")
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.TrimPrefix(host, "www.")
	}
	return d
}

// Source names well known referrers. Unknown referrers are named by their
// registrable domain.
func Source(host, domain string) string {
	if s, ok := refList[host]; ok {
		return s
	}
	if s, ok := refList[domain]; ok {
		return s
	}
	// google.co.uk, yandex.com.tr, ...
	if label, _, ok := strings.Cut(domain, "."); ok {
		if s, ok := refLabels[label]; ok {
			return s
		}
	}
	return domain
}

func hostname(h string) string {
	h = strings.TrimSpace(h)
	if x, _, err := net.SplitHostPort(h); err == nil {
		return strings.Trim(x, "[]")
	}
	return strings.Trim(h, "[]")
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
