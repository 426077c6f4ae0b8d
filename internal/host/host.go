// Package host drives filter exchanges from echo: it delivers request
// headers and body chunks to the exchange, forwards or answers the request,
// and lets the exchange annotate the response headers.
package host

import (
	"context"
	"fmt"
	"net/http"

	"inference-filter/internal/filter"
)

type hostKey struct{}

// exchangeHost is the filter.Host for one echo request.
type exchangeHost struct {
	ex       *filter.Exchange
	req      *http.Request
	res      http.ResponseWriter
	chunk    []byte
	respHdr  http.Header
	replied  bool
	annotate bool
}

var _ filter.Host = (*exchangeHost)(nil)

func (h *exchangeHost) RequestHeaders() http.Header { return h.req.Header }

func (h *exchangeHost) RequestPath() string { return h.req.URL.RequestURI() }

func (h *exchangeHost) RequestBody(start, size int) ([]byte, error) {
	if start < 0 || size < 0 || start+size > len(h.chunk) {
		return nil, fmt.Errorf("body range [%d,%d) outside chunk of %d bytes", start, start+size, len(h.chunk))
	}
	return h.chunk[start : start+size], nil
}

func (h *exchangeHost) ResponseHeaders() http.Header {
	if h.respHdr == nil {
		return h.res.Header()
	}
	return h.respHdr
}

func (h *exchangeHost) AddResponseHeader(key, value string) {
	h.ResponseHeaders().Add(key, value)
}

func (h *exchangeHost) SendResponse(status int, headers http.Header, body []byte) {
	if h.replied {
		return
	}
	h.replied = true
	for k, vals := range headers {
		for _, v := range vals {
			h.res.Header().Add(k, v)
		}
	}
	h.res.WriteHeader(status)
	_, _ = h.res.Write(body)
}

// responseHeaders hands the upstream (or local) response headers to the
// exchange. It runs at most once per exchange.
func (h *exchangeHost) responseHeaders(hdr http.Header) {
	if h.annotate {
		return
	}
	h.annotate = true
	h.respHdr = hdr
	h.ex.OnResponseHeaders()
}

func withHost(ctx context.Context, h *exchangeHost) context.Context {
	return context.WithValue(ctx, hostKey{}, h)
}

func hostFrom(ctx context.Context) (*exchangeHost, bool) {
	h, ok := ctx.Value(hostKey{}).(*exchangeHost)
	return h, ok
}

// ExchangeFrom returns the exchange driven for the request carrying ctx.
func ExchangeFrom(ctx context.Context) (*filter.Exchange, bool) {
	h, ok := hostFrom(ctx)
	if !ok {
		return nil, false
	}
	return h.ex, true
}
