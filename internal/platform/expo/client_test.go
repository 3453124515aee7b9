package expo_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-relay/internal/metrics"
	"github.com/tinywideclouds/go-push-relay/internal/platform/expo"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, serverURL string, token string) (*expo.Client, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	client, err := expo.NewClient(expo.Config{
		PushURL:     serverURL + "/--/api/v2/push/send",
		AccessToken: token,
		Timeout:     5 * time.Second,
	}, m, newTestLogger())
	require.NoError(t, err)
	return client, m
}

func gzipped(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(b)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := expo.NewClient(expo.Config{PushURL: "not a url"}, nil, newTestLogger())
	assert.Error(t, err)
}

func TestDeliver_Plain(t *testing.T) {
	var gotBody []byte
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/--/api/v2/push/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Content-Encoding"))
		assert.Empty(t, r.Header.Get("Authorization"))

		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"status":"ok","id":"XXXX"}}`))
	}))
	defer mockServer.Close()

	client, m := newClient(t, mockServer.URL, "")
	payload := &push.Payload{Body: []byte(`{"to":"ExponentPushToken[abc]"}`), Count: 1}

	result, err := client.Deliver(context.Background(), payload)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.JSONEq(t, `{"data":{"status":"ok","id":"XXXX"}}`, string(result.Body))
	assert.Equal(t, payload.Body, gotBody)
	assert.Equal(t, 1, testutil.CollectAndCount(m.UpstreamDuration))
}

func TestDeliver_HostHeaderMatchesDestination(t *testing.T) {
	var gotHost string
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		_, _ = w.Write([]byte(`{}`))
	}))
	defer mockServer.Close()

	client, _ := newClient(t, mockServer.URL, "")
	_, err := client.Deliver(context.Background(), &push.Payload{Body: []byte(`{"to":"A"}`)})
	require.NoError(t, err)

	u, _ := url.Parse(mockServer.URL)
	assert.Equal(t, u.Host, gotHost)
}

func TestDeliver_Gzip(t *testing.T) {
	plain := []byte(`[{"to":"A"},{"to":"B"}]`)

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "gzip, deflate", r.Header.Get("Accept-Encoding"))

		zr, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got, _ := io.ReadAll(zr)
		assert.Equal(t, plain, got)

		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte(`{"data":[{"status":"ok"},{"status":"ok"}]}`))
		_ = zw.Close()
	}))
	defer mockServer.Close()

	client, _ := newClient(t, mockServer.URL, "")
	result, err := client.Deliver(context.Background(), &push.Payload{Body: gzipped(t, plain), Compressed: true, Count: 2})

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"status":"ok"},{"status":"ok"}]}`, string(result.Body))
}

func TestDeliver_DeflateResponse(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"data":[]}`))
		_ = zw.Close()

		w.Header().Set("Content-Encoding", "deflate")
		_, _ = w.Write(buf.Bytes())
	}))
	defer mockServer.Close()

	client, _ := newClient(t, mockServer.URL, "")
	result, err := client.Deliver(context.Background(), &push.Payload{Body: gzipped(t, []byte(`[]`)), Compressed: true})

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(result.Body))
}

func TestDeliver_RelaysErrorsVerbatim(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"code":"TOO_MANY_REQUESTS","message":"slow down"}]}`))
	}))
	defer mockServer.Close()

	client, _ := newClient(t, mockServer.URL, "")
	result, err := client.Deliver(context.Background(), &push.Payload{Body: []byte(`{"to":"A"}`)})

	require.NoError(t, err, "an upstream error status is not a transport error")
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	assert.JSONEq(t, `{"errors":[{"code":"TOO_MANY_REQUESTS","message":"slow down"}]}`, string(result.Body))
}

func TestDeliver_NonJSONPassesThroughAsString(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>upstream down</html>"))
	}))
	defer mockServer.Close()

	client, _ := newClient(t, mockServer.URL, "")
	result, err := client.Deliver(context.Background(), &push.Payload{Body: []byte(`{"to":"A"}`)})

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
	assert.JSONEq(t, `"<html>upstream down</html>"`, string(result.Body))
}

func TestDeliver_UndecodableCompressedResponseRelaysRaw(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance window"))
	}))
	defer mockServer.Close()

	client, _ := newClient(t, mockServer.URL, "")
	payload := &push.Payload{Body: gzipped(t, []byte(`[{"to":"A"}]`)), Compressed: true, Count: 1}
	result, err := client.Deliver(context.Background(), payload)

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
	assert.JSONEq(t, `"maintenance window"`, string(result.Body))
}

func TestDeliver_AccessToken(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer mockServer.Close()

	client, _ := newClient(t, mockServer.URL, "secret-token")
	_, err := client.Deliver(context.Background(), &push.Payload{Body: []byte(`{"to":"A"}`)})
	require.NoError(t, err)
}

func TestDeliver_TransportFailure(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := mockServer.URL
	mockServer.Close()

	client, _ := newClient(t, serverURL, "")
	_, err := client.Deliver(context.Background(), &push.Payload{Body: []byte(`{"to":"A"}`)})

	require.Error(t, err)
	var upErr *push.UpstreamError
	assert.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusBadGateway, push.HTTPStatus(err))
}
