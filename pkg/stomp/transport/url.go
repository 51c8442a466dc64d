package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// FromSockJS converts a SockJS endpoint URL into the URL of its raw
// WebSocket endpoint: http and https become ws and wss and "/websocket" is
// appended. The result is made absolute with ToAbsolute.
func FromSockJS(sockJSURL string, base *url.URL) (string, error) {
	switch {
	case strings.HasPrefix(sockJSURL, "https://"):
		sockJSURL = "wss://" + strings.TrimPrefix(sockJSURL, "https://")
	case strings.HasPrefix(sockJSURL, "http://"):
		sockJSURL = "ws://" + strings.TrimPrefix(sockJSURL, "http://")
	}

	return ToAbsolute(strings.TrimSuffix(sockJSURL, "/")+"/websocket", base)
}

// ToAbsolute returns wsURL as an absolute ws:// or wss:// URL. http and https
// URLs are rejected. Relative URLs are resolved against base, which plays the
// part of the page location: an http base yields ws, anything else wss. A nil
// base leaves the host empty.
func ToAbsolute(wsURL string, base *url.URL) (string, error) {
	if strings.HasPrefix(wsURL, "http://") || strings.HasPrefix(wsURL, "https://") {
		return "", fmt.Errorf("%w: %q must use the ws or wss scheme", ErrInvalidURL, wsURL)
	}

	if strings.HasPrefix(wsURL, "ws://") || strings.HasPrefix(wsURL, "wss://") {
		if _, err := url.Parse(wsURL); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		return wsURL, nil
	}

	if base == nil {
		base = &url.URL{}
	}

	scheme := "wss"
	if base.Scheme == "http" {
		scheme = "ws"
	}

	path := wsURL
	if !strings.HasPrefix(wsURL, "/") {
		path = strings.TrimSuffix(base.Path, "/") + "/" + wsURL
	}

	return scheme + "://" + base.Host + path, nil
}
