package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickVerifyCarriesSignedAmount(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invoice/status", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code": 0,
			"status":     "confirmed",
			"amount":     25000,
		})
	}))
	defer srv.Close()

	client := NewClick("svc-1", "secret", srv.URL, "http://localhost:3000")
	res, err := client.VerifyPayment(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(25000), res.Amount)

	// The gateway recomputes the signature from the wire fields, so every
	// signed field has to be on the wire. Status checks sign amount=0.
	amount, ok := captured["amount"]
	require.True(t, ok, "verify body must carry the amount field the signature covers")
	assert.Equal(t, float64(0), amount)

	signTime := int64(captured["sign_time"].(float64))
	assert.Equal(t, ClickVerifySignature("svc-1", "txn-1", signTime, "secret"), captured["sign_string"])
}
