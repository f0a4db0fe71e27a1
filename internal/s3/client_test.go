package s3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepodsy/my-finance-app/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), config.S3Config{
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	return client
}

func TestFetchObject(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("s3cr3t\n"))
	})

	data, err := client.FetchObject(context.Background(), "secrets", "authd/signing-key")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t\n", string(data))
	assert.Equal(t, "/secrets/authd/signing-key", gotPath)
}

func TestFetchObject_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
	})

	_, err := client.FetchObject(context.Background(), "secrets", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://secrets/missing")
}

func TestFetchObject_TooLarge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", MaxObjectSize+1)))
	})

	_, err := client.FetchObject(context.Background(), "secrets", "big")
	assert.ErrorIs(t, err, ErrObjectTooLarge)
}
