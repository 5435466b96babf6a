package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	userAgent      = "gitwatch"
	requestTimeout = 30 * time.Second
)

// One proxy transport per process: clients sharing a forward proxy reuse
// the same transport instead of building a fresh connection pool each.
var (
	transportMu sync.Mutex
	transports  = map[string]*http.Transport{}
)

func proxyTransport(proxy string) (*http.Transport, error) {
	transportMu.Lock()
	defer transportMu.Unlock()

	if t, ok := transports[proxy]; ok {
		return t, nil
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url %q: %w", proxy, err)
	}
	t := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	transports[proxy] = t
	return t, nil
}

// newHTTPClient builds the outbound HTTP client for a platform, routed
// through the forward proxy when one is configured. Every request carries
// the bounded timeout.
func newHTTPClient(proxy string) (*http.Client, error) {
	hc := &http.Client{Timeout: requestTimeout}
	if proxy != "" {
		t, err := proxyTransport(proxy)
		if err != nil {
			return nil, err
		}
		hc.Transport = t
	}
	return hc, nil
}

// restClient is the shared JSON-over-REST helper used by the non-GitHub
// platform clients.
type restClient struct {
	platform   Platform
	baseURL    string
	httpClient *http.Client
	// header and query are applied to every request (auth et al).
	header http.Header
	query  url.Values
}

func newRESTClient(p Platform, baseURL, proxy string) (*restClient, error) {
	hc, err := newHTTPClient(proxy)
	if err != nil {
		return nil, err
	}
	return &restClient{
		platform:   p,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		header:     http.Header{},
		query:      url.Values{},
	}, nil
}

// getJSON fetches baseURL+path with the client's standing headers/query
// plus the per-call query, decoding the body into out. Non-2xx statuses
// map into the error taxonomy.
func (r *restClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := r.baseURL + path
	merged := url.Values{}
	for k, vs := range r.query {
		merged[k] = vs
	}
	for k, vs := range query {
		merged[k] = vs
	}
	if len(merged) > 0 {
		u += "?" + merged.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	res, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s API request %s: %w", r.platform, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return statusError(r.platform, res.StatusCode, path)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s API decode %s: %w", r.platform, path, err)
	}
	return nil
}
