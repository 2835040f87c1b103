package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
)

func TestExchangeClientRoundTrip(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/nodes/auth/exchange", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"mqtt": nodeauth.BrokerCredentials{
				Host: "mq.example.com", Port: 1883,
				Username: "node-user", Password: "node-pass",
			},
		})
	}))
	defer srv.Close()

	client := NewExchangeClient(srv.URL + "/")
	creds, err := client.Exchange(context.Background(), "node-1", "token-1")
	require.NoError(t, err)

	assert.Equal(t, "node-1", gotBody["nodeId"])
	assert.Equal(t, "token-1", gotBody["nodeToken"])
	assert.Equal(t, "mq.example.com", creds.Host)
	assert.Equal(t, 1883, creds.Port)
	assert.Equal(t, "node-user", creds.Username)
}

func TestExchangeClientRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid node credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewExchangeClient(srv.URL).Exchange(context.Background(), "node-1", "bad-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestExchangeClientRejectsIncompleteCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"mqtt":{"host":"","port":0}}`))
	}))
	defer srv.Close()

	_, err := NewExchangeClient(srv.URL).Exchange(context.Background(), "node-1", "token-1")
	require.Error(t, err)
}
