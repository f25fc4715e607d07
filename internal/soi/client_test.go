package soi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

func TestReportSuccess(t *testing.T) {
	var received []*types.Intelligence
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/callback/ingest", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get(securityKeyHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	soiDesc := types.SOI{
		BaseURL:  srv.URL,
		Callback: types.SOICallback{Method: "POST", Path: "/callback/ingest"},
		APIKey:   "api-key",
	}

	c := NewClient()
	err := c.Report(context.Background(), soiDesc, []*types.Intelligence{{GlobalID: "i-1"}})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "i-1", received[0].GlobalID)
}

func TestReportDefaultsToPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	soiDesc := types.SOI{BaseURL: srv.URL, Callback: types.SOICallback{Path: "/x"}}

	c := NewClient()
	err := c.Report(context.Background(), soiDesc, nil)
	require.NoError(t, err)
}

func TestReportNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	soiDesc := types.SOI{BaseURL: srv.URL, Callback: types.SOICallback{Method: "POST", Path: "/x"}}

	c := NewClient()
	err := c.Report(context.Background(), soiDesc, nil)
	assert.Error(t, err)
}

func TestReportInvalidBaseURL(t *testing.T) {
	c := NewClient()
	err := c.Report(context.Background(), types.SOI{BaseURL: "://bad"}, nil)
	assert.Error(t, err)
}
