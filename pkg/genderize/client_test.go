package genderize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewClient(Config{
		Endpoint:       url,
		APIKey:         "secret",
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, logger)
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "John", FirstName("  John  Smith "))
	assert.Equal(t, "", FirstName("   "))
}

func TestGuess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "John", r.URL.Query().Get("name"))
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":1000,"name":"John","gender":"male","probability":0.987}`))
	}))
	defer server.Close()

	guess, err := newTestClient(server.URL).Guess(context.Background(), "John Smith")
	require.NoError(t, err)
	require.NotNil(t, guess.Gender)
	assert.Equal(t, "male", *guess.Gender)
	require.NotNil(t, guess.Accuracy)
	assert.Equal(t, 99, *guess.Accuracy)
}

func TestGuessUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":0,"name":"Xq","gender":null,"probability":0.0}`))
	}))
	defer server.Close()

	guess, err := newTestClient(server.URL).Guess(context.Background(), "Xq")
	require.NoError(t, err)
	assert.Nil(t, guess.Gender)
	assert.Nil(t, guess.Accuracy)
}

func TestGuessRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"name":"Jane","gender":"female","probability":0.9}`))
	}))
	defer server.Close()

	guess, err := newTestClient(server.URL).Guess(context.Background(), "Jane")
	require.NoError(t, err)
	assert.Equal(t, "female", *guess.Gender)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGuessPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Guess(context.Background(), "Jane")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGuessEmptyName(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:0").Guess(context.Background(), " ")
	assert.Error(t, err)
}
