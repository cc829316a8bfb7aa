package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_SignsPayload(t *testing.T) {
	secret := "s3cret"
	var gotSig string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Pageshot-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	event := &Event{
		Type:      "batch.completed",
		JobID:     "job-1",
		Timestamp: time.Now().Unix(),
		Data:      map[string]any{"succeeded": 3, "failed": 1},
	}
	require.NoError(t, Deliver(context.Background(), srv.URL, secret, event))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "batch.completed", decoded.Type)
	assert.Equal(t, "job-1", decoded.JobID)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Pageshot-Signature")
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", &Event{Type: "batch.completed"}))
	assert.Empty(t, gotSig)
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", &Event{Type: "batch.completed"})
	assert.Error(t, err)
}
