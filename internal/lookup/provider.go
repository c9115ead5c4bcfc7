// Package lookup brokers threat-intelligence queries to third-party services
// so that API keys never leave the server.
package lookup

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Service names understood by the broker.
const (
	ServiceAbuseIPDB  = "abuseipdb"
	ServiceVirusTotal = "virustotal"
	ServiceShodan     = "shodan"
)

// Kind is the type of indicator being looked up.
type Kind string

const (
	KindIP     Kind = "ip"
	KindDomain Kind = "domain"
	KindURL    Kind = "url"
	KindHash   Kind = "hash"
)

// ParseKind normalises a caller supplied kind. "file" is accepted as an alias of hash.
func ParseKind(value string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ip", "ip_address":
		return KindIP, true
	case "domain":
		return KindDomain, true
	case "url":
		return KindURL, true
	case "hash", "file":
		return KindHash, true
	default:
		return "", false
	}
}

// Provider describes how to reach one upstream service.
type Provider struct {
	Name    string
	BaseURL string
	Kinds   []Kind
	// DefaultKind is used when the caller gives no kind. Empty means infer it from the target.
	DefaultKind Kind

	authorize func(req *http.Request, key string)
	endpoint  func(kind Kind, target string) (string, url.Values, error)
}

// Supports reports whether the provider accepts kind.
func (p Provider) Supports(kind Kind) bool {
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Authorize attaches key to req the way the service expects.
func (p Provider) Authorize(req *http.Request, key string) {
	p.authorize(req, key)
}

// Endpoint returns the request path and query for a target of the given kind.
func (p Provider) Endpoint(kind Kind, target string) (string, url.Values, error) {
	if !p.Supports(kind) {
		return "", nil, fmt.Errorf("%s does not support %s lookups", p.Name, kind)
	}
	return p.endpoint(kind, target)
}

func headerAuth(name string) func(*http.Request, string) {
	return func(req *http.Request, key string) {
		req.Header.Set(name, key)
	}
}

func queryAuth(param string) func(*http.Request, string) {
	return func(req *http.Request, key string) {
		q := req.URL.Query()
		q.Set(param, key)
		req.URL.RawQuery = q.Encode()
	}
}

var virusTotalCollections = map[Kind]string{
	KindIP:     "ip_addresses",
	KindDomain: "domains",
	KindURL:    "urls",
	KindHash:   "files",
}

// DefaultProviders returns the built-in provider table.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ServiceAbuseIPDB: {
			Name:        ServiceAbuseIPDB,
			BaseURL:     "https://api.abuseipdb.com",
			Kinds:       []Kind{KindIP},
			DefaultKind: KindIP,
			authorize:   headerAuth("Key"),
			endpoint: func(_ Kind, target string) (string, url.Values, error) {
				q := url.Values{}
				q.Set("ipAddress", target)
				q.Set("maxAgeInDays", "90")
				q.Set("verbose", "")
				return "/api/v2/check", q, nil
			},
		},
		ServiceVirusTotal: {
			Name:      ServiceVirusTotal,
			BaseURL:   "https://www.virustotal.com",
			Kinds:     []Kind{KindIP, KindDomain, KindURL, KindHash},
			authorize: headerAuth("x-apikey"),
			endpoint: func(kind Kind, target string) (string, url.Values, error) {
				id := target
				if kind == KindURL {
					id = base64.RawURLEncoding.EncodeToString([]byte(target))
				}
				return "/api/v3/" + virusTotalCollections[kind] + "/" + url.PathEscape(id), nil, nil
			},
		},
		ServiceShodan: {
			Name:        ServiceShodan,
			BaseURL:     "https://api.shodan.io",
			Kinds:       []Kind{KindIP},
			DefaultKind: KindIP,
			authorize:   queryAuth("key"),
			endpoint: func(_ Kind, target string) (string, url.Values, error) {
				return "/shodan/host/" + url.PathEscape(target), nil, nil
			},
		},
	}
}

// ServiceNames lists the built-in services in a stable order.
func ServiceNames() []string {
	providers := DefaultProviders()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
