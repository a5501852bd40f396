package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ClientOptions configures the outbound HTTP transport.
type ClientOptions struct {
	ProxyURL     string
	DNSOverHTTPS bool
	Timeout      time.Duration
}

// NewHTTPClient builds the shared HTTP client for API and image fetches.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 8,
	}

	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	if opts.DNSOverHTTPS {
		resolver := newDoHResolver()
		dialer := &net.Dialer{Timeout: 10 * time.Second}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			if net.ParseIP(host) != nil {
				return dialer.DialContext(ctx, network, addr)
			}
			ips, err := resolver.lookup(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// dohResolver answers A lookups through Cloudflare's JSON DNS endpoint.
// The endpoint's own hostname still resolves through the system stub.
type dohResolver struct {
	endpoint string
	client   *http.Client

	mu    sync.Mutex
	cache map[string][]string
}

func newDoHResolver() *dohResolver {
	return &dohResolver{
		endpoint: "https://cloudflare-dns.com/dns-query",
		client:   &http.Client{Timeout: 10 * time.Second},
		cache:    make(map[string][]string),
	}
}

func (r *dohResolver) lookup(ctx context.Context, host string) ([]string, error) {
	r.mu.Lock()
	if ips, ok := r.cache[host]; ok {
		r.mu.Unlock()
		return ips, nil
	}
	r.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("name", host)
	q.Set("type", "A")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DoH lookup for %s failed: %w", host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DoH lookup for %s returned %s", host, resp.Status)
	}

	var answer struct {
		Answer []struct {
			Type int    `json:"type"`
			Data string `json:"data"`
		} `json:"Answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, err
	}

	var ips []string
	for _, a := range answer.Answer {
		// Type 1 is an A record; CNAME entries ride along in the chain.
		if a.Type == 1 && net.ParseIP(a.Data) != nil {
			ips = append(ips, a.Data)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("DoH lookup for %s returned no addresses", host)
	}

	r.mu.Lock()
	r.cache[host] = ips
	r.mu.Unlock()
	return ips, nil
}
