package navigation

import (
	"fmt"
	"net/url"
	"strings"
)

// Request is a single navigation attempt made by the browser host.
type Request struct {
	URL    *url.URL
	Scheme string
	Host   string
	Path   string
	Query  url.Values
}

// ParseRequest builds a Request from a raw URL. Scheme and host are
// lower-cased; opaque URIs such as "whatsapp:send?text=hi" keep their query.
func ParseRequest(raw string) (Request, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Request{}, fmt.Errorf("parse navigation url: %w", err)
	}
	if u.Scheme == "" {
		return Request{}, fmt.Errorf("parse navigation url: missing scheme in %q", raw)
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		// Keep whatever pairs parsed; a stray '%' should not hide the rest.
		query = u.Query()
	}

	return Request{
		URL:    u,
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Hostname()),
		Path:   u.Path,
		Query:  query,
	}, nil
}

// String returns the original URL.
func (r Request) String() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// IsWeb reports whether the request uses http or https.
func (r Request) IsWeb() bool {
	return r.Scheme == "http" || r.Scheme == "https"
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
