package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRelaysStatusHeadersBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.Header().Set("Content-Type", "application/javascript")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte{0xff, 0x00, 0xfe})
	}))
	defer srv.Close()

	f := New(Options{})
	res, err := f.Fetch(context.Background(), srv.URL+"/app.js")
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, res.StatusCode)
	assert.Equal(t, []byte{0xff, 0x00, 0xfe}, res.Body)

	var cookies []string
	for _, h := range res.Headers {
		if h.Name == "Set-Cookie" {
			cookies = append(cookies, h.Value)
		}
	}
	assert.Equal(t, []string{"a=1", "b=2"}, cookies)
	assert.Contains(t, res.Headers, Header{Name: "Content-Type", Value: "application/javascript"})
}

func TestFlattenHeadersOrder(t *testing.T) {
	h := http.Header{}
	h.Add("X-B", "1")
	h.Add("X-A", "2")
	h.Add("X-B", "3")

	assert.Equal(t, []Header{
		{Name: "X-A", Value: "2"},
		{Name: "X-B", Value: "1"},
		{Name: "X-B", Value: "3"},
	}, flattenHeaders(h))
}

func TestFetchConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	f := New(Options{Timeout: 2 * time.Second})
	res, err := f.Fetch(context.Background(), "http://"+addr+"/x.png")
	assert.Nil(t, res)

	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Contains(t, ferr.URL, addr)
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(Options{Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := New(Options{MaxBodyBytes: 16}).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	res, err := New(Options{MaxBodyBytes: 64}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, res.Body, 64)

	res, err = New(Options{MaxBodyBytes: -1}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, res.Body, 64)
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := New(Options{}).Fetch(context.Background(), "http://[::1")
	var ferr *FetchError
	assert.True(t, errors.As(err, &ferr))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestNewWithClient(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"X-Upstream": {r.URL.Host}},
			Body:       io.NopCloser(strings.NewReader("0123456789")),
			Request:    r,
		}, nil
	})}

	res, err := NewWithClient(client, 10).Fetch(context.Background(), "https://cdn.test/a.js")
	require.NoError(t, err)
	assert.Equal(t, []Header{{Name: "X-Upstream", Value: "cdn.test"}}, res.Headers)
	assert.Equal(t, "0123456789", string(res.Body))

	_, err = NewWithClient(client, 4).Fetch(context.Background(), "https://cdn.test/a.js")
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}
