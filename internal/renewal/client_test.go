package renewal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func testRequest() model.RenewRequest {
	return model.RenewRequest{
		IdempotencyKey: "01J9ZK6W3Q4X1V2B3N4M5P6R7S",
		ServerID:       "srv-eu-1",
		ClientID:       "key-1",
		Email:          "42@keys",
		NewExpiryTime:  1_800_000_000_000,
	}
}

func TestClient_Renew_Success(t *testing.T) {
	var got model.RenewRequest
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get(IdempotencyHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, 3, WithBackOff(fastBackOff))

	err := c.Renew(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, "/keys/renew", gotPath)
	assert.Equal(t, "01J9ZK6W3Q4X1V2B3N4M5P6R7S", gotKey)
	assert.Equal(t, testRequest(), got)
}

func TestClient_Renew_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 3, WithBackOff(fastBackOff))

	err := c.Renew(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Renew_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 2, WithBackOff(fastBackOff))

	err := c.Renew(context.Background(), testRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestClient_Renew_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5, WithBackOff(fastBackOff))

	err := c.Renew(context.Background(), testRequest())

	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Renew_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, time.Second, 10, WithBackOff(fastBackOff))

	err := c.Renew(ctx, testRequest())

	assert.ErrorIs(t, err, context.Canceled)
}
