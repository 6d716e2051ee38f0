package httpserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/labstack/echo/v4"
)

// upstreamTransport is shared by every backend so idle connections are pooled
// per host rather than per route.
var upstreamTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   3 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   32,
	IdleConnTimeout:       90 * time.Second,
	ResponseHeaderTimeout: 20 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// upstream is one backend service mounted behind the gateway.
type upstream struct {
	name   string
	target *url.URL
	proxy  *httputil.ReverseProxy
}

func newUpstream(name, rawURL, stripPrefix string) (*upstream, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s upstream: %w", name, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%s upstream: %q is not an absolute url", name, rawURL)
	}

	u := &upstream{name: name, target: target}
	u.proxy = &httputil.ReverseProxy{
		Transport: upstreamTransport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.Out.URL.Path, stripPrefix)
			if pr.Out.URL.RawPath != "" {
				pr.Out.URL.RawPath = strings.TrimPrefix(pr.Out.URL.RawPath, stripPrefix)
			}
			pr.SetURL(target)
			pr.SetXForwarded()
			// keep the scheme set by a fronting load balancer
			if proto := pr.In.Header.Get("X-Forwarded-Proto"); proto != "" {
				pr.Out.Header.Set("X-Forwarded-Proto", proto)
			}
		},
		ErrorHandler:  u.fail,
		FlushInterval: 100 * time.Millisecond,
	}
	return u, nil
}

// fail answers 502 when the backend cannot be reached or drops the response.
func (u *upstream) fail(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Error("proxy_error",
		"upstream", u.name,
		"target", u.target.Host,
		"error", err,
	)
	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "upstream unavailable"})
}

func (u *upstream) handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		u.proxy.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
