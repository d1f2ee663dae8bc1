package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// New returns an HTTP client with the given timeout, routed through proxy if
// it isn't empty.
func New(timeout time.Duration, proxy string) (*http.Client, error) {
	client := &http.Client{
		Timeout: timeout,
	}
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("httpclient: invalid proxy URL: %w", err)
		}
		client.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	return client, nil
}
