package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemend/pkg/contract"
)

// UT-FHT-01: 默认 UA/Accept 头与 UTF-8 直通
func TestFetchHeaders(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		assert.Equal(t, "1", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<p>héllo</p>")
	}))
	defer srv.Close()

	c, err := New([]byte(`{"extra_headers":{"X-Test":"1"}}`))
	require.NoError(t, err)
	b, err := c.Fetch(context.Background(), srv.URL+"/about/")
	require.NoError(t, err)
	assert.Equal(t, "<p>héllo</p>", string(b))
}

// UT-FHT-02: 按声明字符集转码
func TestFetchCharset(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		_, _ = w.Write([]byte("<p>caf\xe9 \x93q\x94</p>"))
	}))
	defer srv.Close()

	c, err := New(nil)
	require.NoError(t, err)
	b, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>café “q”</p>", string(b))
}

// UT-FHT-03: 非 2xx 以 UpstreamError 返回状态
func TestFetchUpstreamStatus(t *testing.T) {
	for _, code := range []int{403, 404, 503} {
		srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			nethttp.Error(w, "nope", code)
		}))
		c, err := New(nil)
		require.NoError(t, err)
		_, err = c.Fetch(context.Background(), srv.URL)
		srv.Close()

		var ue contract.UpstreamError
		require.True(t, errors.As(err, &ue), "状态 %d 应为 UpstreamError", code)
		assert.Equal(t, code, ue.UpstreamStatus())
		assert.Equal(t, "nope", ue.UpstreamMessage())
	}
}

// UT-FHT-04: 连接失败为 ErrNetwork；取消返回 ctx 错误；非法选项拒绝
func TestFetchErrors(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	c.do = func(*nethttp.Request) (*nethttp.Response, error) { return nil, errors.New("dial refused") }
	_, err = c.Fetch(context.Background(), "http://example.invalid/")
	assert.ErrorIs(t, err, contract.ErrNetwork)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.do = func(r *nethttp.Request) (*nethttp.Response, error) { return nil, r.Context().Err() }
	_, err = c.Fetch(ctx, "http://example.invalid/")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = c.Fetch(context.Background(), "://bad")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	_, err = New([]byte(`{"bogus":1}`))
	assert.Error(t, err)
}
