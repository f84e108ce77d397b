package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cbcflip/internal/token"
	"cbcflip/pkg/logx"
)

const (
	DefaultCookie  = "session"
	DefaultTimeout = 5 * time.Second
	maxBody        = 4 << 20
)

// HTTP sends each candidate as a cookie on a GET request.
type HTTP struct {
	URL    *url.URL
	Cookie string
	Client *http.Client
	Codec  token.Codec
}

type HTTPOptions struct {
	Target  string
	Params  url.Values
	Cookie  string
	Timeout time.Duration
	Codec   token.Codec
	Client  *http.Client
}

// NewHTTP validates the target and merges Params into its query string.
func NewHTTP(opt HTTPOptions) (*HTTP, error) {
	u, err := url.Parse(opt.Target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("target %q: scheme must be http or https", opt.Target)
	}
	q := u.Query()
	for k, vs := range opt.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	h := &HTTP{URL: u, Cookie: opt.Cookie, Client: opt.Client, Codec: opt.Codec}
	if h.Cookie == "" { h.Cookie = DefaultCookie }
	if h.Codec == nil { h.Codec = token.Std }
	if h.Client == nil {
		timeout := opt.Timeout
		if timeout <= 0 { timeout = DefaultTimeout }
		h.Client = &http.Client{Timeout: timeout}
	}
	return h, nil
}

func (h *HTTP) Submit(ctx context.Context, tok []byte) Response {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL.String(), nil)
	if err != nil {
		return Response{Err: err}
	}
	req.AddCookie(&http.Cookie{Name: h.Cookie, Value: h.Codec.Encode(tok)})
	resp, err := h.Client.Do(req)
	if err != nil {
		logx.Warnf("request error: %v", err)
		return Response{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		logx.Warnf("read body: %v", err)
		return Response{Err: err}
	}
	return Response{Body: string(body), Status: resp.StatusCode}
}
