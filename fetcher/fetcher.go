package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	DefaultTimeout             = 15 * time.Second
	DefaultMaxBodyBytes        = 50 * 1024 * 1024
	DefaultMaxIdleConnsPerHost = 16
)

// ErrBodyTooLarge is wrapped by FetchError when a body exceeds MaxBodyBytes.
const ErrBodyTooLarge errors.Error = "response body too large"

// Header is one response header line.
type Header struct {
	Name  string
	Value string
}

// Result is an upstream response read to completion.
type Result struct {
	StatusCode int
	Headers    []Header
	Body       []byte
}

// FetchError reports a failed upstream fetch.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Options 出站请求配置
type Options struct {
	Timeout             time.Duration // 单次请求总超时，0 使用默认值
	MaxBodyBytes        int64         // 响应体上限，<0 表示不限制
	MaxIdleConnsPerHost int
}

// Fetcher performs plain GET requests over a shared connection pool.
// It is safe for concurrent use; no lock is held while a request is in flight.
type Fetcher struct {
	client       *http.Client
	maxBodyBytes int64
}

// New creates a Fetcher with its own pooled transport.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *http.Client, maxBodyBytes int64) *Fetcher {
	return &Fetcher{client: client, maxBodyBytes: maxBodyBytes}
}

// Fetch GETs rawURL and reads the whole response. Any non-2xx status is
// still a successful fetch; only transport failures return an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := f.readBody(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       body,
	}, nil
}

func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	if f.maxBodyBytes < 0 {
		return io.ReadAll(r)
	}
	limitedReader := &io.LimitedReader{R: r, N: f.maxBodyBytes + 1}
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.maxBodyBytes)
	}
	return body, nil
}

// CloseIdleConnections releases pooled connections.
func (f *Fetcher) CloseIdleConnections() {
	f.client.CloseIdleConnections()
}

// flattenHeaders turns http.Header into an ordered list. net/http does not
// keep the wire order across names, so names are sorted; the values of each
// name keep their upstream order, duplicates included.
func flattenHeaders(h http.Header) []Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Header, 0, len(h))
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}
