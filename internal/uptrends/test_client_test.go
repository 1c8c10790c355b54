package uptrends

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"synthmigrate/internal/monitor"
	"synthmigrate/internal/retry"
)

const listPayload = `[
  {"MonitorGuid":"g-1","Name":"Shop homepage","MonitorType":"Https","IsActive":true},
  {"MonitorGuid":"g-2","Name":"Mail relay","MonitorType":"Smtp","IsActive":false},
  {"MonitorGuid":"g-3","Name":"Shop checkout","MonitorType":"Transaction"}
]`

const httpsPayload = `{
  "MonitorGuid":"g-1","Name":"Shop homepage","MonitorType":"Https","Url":"https://shop.example.com",
  "CheckInterval":5,"IsActive":true,"HttpMethod":"Get",
  "RequestHeaders":[{"Key":"Accept","Value":"text/html"}],
  "ExpectedHttpStatusCode":200,"ExpectedHttpStatusCodeSpecified":true,
  "LoadTimeLimit2":2500,"UserAgent":"chrome","SelectedCheckpoints":{"Checkpoints":[1,2]}
}`

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Sleep: func(context.Context, time.Duration) error { return nil }}
}

func newTestClient(t *testing.T, h http.HandlerFunc, attempts int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New("user", "secret", Options{BaseURL: srv.URL, RPS: 1000, Burst: 10, Retry: fastPolicy(attempts)})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New("", "x", Options{})
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestListMonitors_FiltersAndLimits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/Monitor" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(listPayload))
	}, 1)

	all, err := c.ListMonitors(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.False(t, all[1].Active)
	require.True(t, all[2].Active)

	shop, err := c.ListMonitors(context.Background(), "SHOP", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"g-1", "g-3"}, []string{shop[0].ID, shop[1].ID})

	one, err := c.ListMonitors(context.Background(), "shop", 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, monitor.KindHTTPS, one[0].Kind)
}

func TestFetchMonitor_Decodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Monitor/g-1" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(httpsPayload))
	}, 1)

	rec, err := c.FetchMonitor(context.Background(), "g-1")
	require.NoError(t, err)
	require.Equal(t, "g-1", rec.ID)
	require.Equal(t, monitor.KindHTTPS, rec.Kind)
	require.Equal(t, 300, rec.CheckInterval)
	require.Equal(t, 3, rec.TimeoutSeconds)
	require.Equal(t, 200, *rec.ExpectedStatus)
	require.Equal(t, []monitor.Header{{Key: "Accept", Value: "text/html"}}, rec.Headers)
	require.Equal(t, "chrome", rec.Raw["UserAgent"])
	require.Contains(t, rec.Raw, "SelectedCheckpoints")
	require.NotContains(t, rec.Raw, "Url")
}

func TestFetchMonitor_NotFoundIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}, 3)

	_, err := c.FetchMonitor(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, retry.IsPermanent(err))
	require.EqualValues(t, 1, calls.Load())
}

func TestFetchMonitor_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(httpsPayload))
	}, 3)

	rec, err := c.FetchMonitor(context.Background(), "g-1")
	require.NoError(t, err)
	require.Equal(t, "Shop homepage", rec.Name)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchMonitor_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, 2)

	_, err := c.FetchMonitor(context.Background(), "g-1")
	var sErr *StatusError
	require.True(t, errors.As(err, &sErr))
	require.Equal(t, http.StatusTooManyRequests, sErr.Code)
	require.False(t, retry.IsPermanent(err))
	require.EqualValues(t, 2, calls.Load())
}

func TestFetchMonitor_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, 3)
	_, err := c.FetchMonitor(context.Background(), "g-1")
	require.ErrorIs(t, err, ErrUnauthorized)
}
