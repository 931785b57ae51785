package dashboard

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithBaseBackoff(time.Millisecond),
		WithRateLimit(0),
	}
	return NewClient("test-key", append(base, opts...)...)
}

func TestOrganizations_SendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(APIKeyHeader) != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/organizations", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"1","name":"Acme"},{"id":"2","name":"Other"}]`))
	}))
	defer srv.Close()

	orgs, err := newTestClient(srv).Organizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Acme", orgs[0].Name)
}

func TestOrganizationByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","name":"Acme"},{"id":"2","name":"Other"}]`))
	}))
	defer srv.Close()
	c := newTestClient(srv)

	org, err := c.OrganizationByName(context.Background(), "Other")
	require.NoError(t, err)
	assert.Equal(t, "2", org.ID)

	_, err = c.OrganizationByName(context.Background(), "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing")
}

func TestNetworksAndFloorPlans_Paths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/organizations/1/networks":
			_, _ = w.Write([]byte(`[{"id":"N_1","organizationId":"1","name":"HQ"}]`))
		case "/networks/N_1/floorPlans":
			_, _ = w.Write([]byte(`[{"floorPlanId":"g_1","name":"F1","width":25.5,"height":12,"imageUrl":"http://x/f1","imageExtension":"png"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := newTestClient(srv)

	nets, err := c.Networks(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, nets, 1)
	assert.Equal(t, "N_1", nets[0].ID)

	plans, err := c.FloorPlans(context.Background(), "N_1")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "g_1", plans[0].ID)
	assert.InDelta(t, 25.5, plans[0].Width, 1e-9)
	assert.Equal(t, "png", plans[0].ImageExtension)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	orgs, err := newTestClient(srv, WithMaxRetries(3)).Organizations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orgs)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_RetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Organizations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, WithMaxRetries(5)).Organizations(context.Background())
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_AllRetriesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, WithMaxRetries(2)).Organizations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
}

func TestGet_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Organizations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding /organizations")
}

func TestGet_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(srv, WithBaseBackoff(time.Second)).Organizations(ctx)
	require.Error(t, err)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := newTestClient(srv, WithMaxRetries(1))

	for range 5 {
		_, err := c.Organizations(context.Background())
		require.Error(t, err)
	}
	before := calls.Load()

	_, err := c.Organizations(context.Background())
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "circuit breaker is open")
	assert.Equal(t, before, calls.Load(), "open breaker must not reach the server")
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	c := newTestClient(srv)

	for range 10 {
		_, err := c.Organizations(context.Background())
		var se *StatusError
		require.True(t, errors.As(err, &se))
	}
}

// ----------------------------------------------------------------------------
// Download
// ----------------------------------------------------------------------------

func TestDownload_OmitsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(APIKeyHeader))
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	err := newTestClient(srv).Download(context.Background(), srv.URL+"/f1.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", buf.String())
}

func TestDownload_EmptyURL(t *testing.T) {
	err := NewClient("k").Download(context.Background(), "", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image URL is empty")
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("k")
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultMaxRetries, c.maxRetries)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.NotNil(t, c.limiter)

	c = NewClient("k", WithBaseURL("http://example/api/"), WithMaxRetries(0), WithTimeout(time.Second))
	assert.Equal(t, "http://example/api", c.baseURL)
	assert.Equal(t, 1, c.maxRetries)
	assert.Equal(t, time.Second, c.http.Timeout)
}
