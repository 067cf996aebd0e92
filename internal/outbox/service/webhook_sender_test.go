package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

func newWebhookServer(t *testing.T, status int) (*httptest.Server, chan capturedRequest, *atomic.Int32) {
	t.Helper()
	requests := make(chan capturedRequest, 8)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, requests, &calls
}

func newTestSender(retryMax int) *WebhookSender {
	sender := NewWebhookSender(WebhookSenderConfig{
		Timeout:      time.Second,
		RetryMax:     retryMax,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, nil)
	sender.now = func() time.Time { return time.Unix(1767225600, 0) }
	return sender
}

func TestWebhookSender_Send(t *testing.T) {
	ctx := context.Background()
	body := []byte(`{"tenant_id":"tenant-b","kind":"hash_mismatch"}`)
	secret := []byte("0123456789abcdef0123456789abcdef")

	t.Run("Success_SignedDelivery", func(t *testing.T) {
		server, requests, _ := newWebhookServer(t, http.StatusNoContent)

		require.NoError(t, newTestSender(0).Send(ctx, server.URL, "audit.tamper_alert", secret, body))

		req := <-requests
		assert.Equal(t, body, req.body)
		assert.Equal(t, "application/json", req.header.Get("Content-Type"))
		assert.Equal(t, "audit.tamper_alert", req.header.Get(EventHeader))
		assert.Equal(t, "1767225600", req.header.Get(TimestampHeader))

		signingKey, err := DeriveSigningKey(secret)
		require.NoError(t, err)
		timestamp, err := strconv.ParseInt(req.header.Get(TimestampHeader), 10, 64)
		require.NoError(t, err)
		assert.True(t, Verify(signingKey, timestamp, req.body, req.header.Get(SignatureHeader)))
		assert.False(t, Verify(signingKey, timestamp+1, req.body, req.header.Get(SignatureHeader)))
	})

	t.Run("Success_UnsignedWithoutSecret", func(t *testing.T) {
		server, requests, _ := newWebhookServer(t, http.StatusOK)

		require.NoError(t, newTestSender(0).Send(ctx, server.URL, "audit.tamper_alert", nil, body))

		req := <-requests
		assert.Empty(t, req.header.Get(SignatureHeader))
		assert.Empty(t, req.header.Get(TimestampHeader))
	})

	t.Run("Error_ServerErrorAfterRetries", func(t *testing.T) {
		server, _, calls := newWebhookServer(t, http.StatusBadGateway)

		err := newTestSender(2).Send(ctx, server.URL, "audit.tamper_alert", secret, body)

		assert.ErrorContains(t, err, "status 502")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Error_ClientErrorNotRetried", func(t *testing.T) {
		server, _, calls := newWebhookServer(t, http.StatusGone)

		err := newTestSender(2).Send(ctx, server.URL, "audit.tamper_alert", secret, body)

		assert.ErrorContains(t, err, "status 410")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Error_Unreachable", func(t *testing.T) {
		server, _, _ := newWebhookServer(t, http.StatusOK)
		url := server.URL
		server.Close()

		err := newTestSender(0).Send(ctx, url, "audit.tamper_alert", secret, body)

		assert.ErrorContains(t, err, "failed to deliver webhook")
	})
}

func TestDeriveSigningKey(t *testing.T) {
	k1, err := DeriveSigningKey([]byte("secret-a"))
	require.NoError(t, err)
	k2, err := DeriveSigningKey([]byte("secret-a"))
	require.NoError(t, err)
	k3, err := DeriveSigningKey([]byte("secret-b"))
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, []byte("secret-a"), k1)
}
