package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokenscope/internal/config"
	"tokenscope/internal/feed"
	"tokenscope/internal/price"
	"tokenscope/internal/wallet"
)

func entry(gen uint64, mint, symbol, image string) feed.Entry {
	return feed.Entry{
		TokenEvent: feed.TokenEvent{Mint: mint, Name: symbol + " token", Symbol: symbol},
		ImageURL:   image,
		Generation: gen,
	}
}

func TestRenderer_PrintsChangesOnce(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	r.Render(feed.View{Status: feed.Status{State: feed.Connecting}})
	r.Render(feed.View{Status: feed.Status{State: feed.Connected}, Entries: []feed.Entry{
		entry(2, "mintB", "BBB", ""),
		entry(1, "mintA", "AAA", ""),
	}})
	r.Render(feed.View{Status: feed.Status{State: feed.Connected}, Entries: []feed.Entry{
		entry(2, "mintB", "BBB", "https://img/b.png"),
		entry(1, "mintA", "AAA", ""),
	}})
	r.Render(feed.View{Status: feed.Status{State: feed.Connected}, Entries: []feed.Entry{
		entry(2, "mintB", "BBB", "https://img/b.png"),
		entry(1, "mintA", "AAA", ""),
	}})

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "[connecting]"))
	assert.Equal(t, 1, strings.Count(text, "[connected]"))
	assert.Equal(t, 1, strings.Count(text, "mintA"))
	assert.Equal(t, 1, strings.Count(text, "mintB"))
	assert.Equal(t, 1, strings.Count(text, "https://img/b.png"))
	assert.Less(t, strings.Index(text, "mintA"), strings.Index(text, "mintB"), "arrival order")
}

func TestRenderer_StatusError(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	r.Render(feed.View{Status: feed.Status{
		State: feed.Reconnecting,
		Err:   "Disconnected from server. Retrying in 3 seconds...",
	}})

	assert.Contains(t, out.String(), "[reconnecting] Disconnected from server. Retrying in 3 seconds...")
}

func TestRenderer_ForgetsEvicted(t *testing.T) {
	r := newRenderer(&bytes.Buffer{})
	r.Render(feed.View{Entries: []feed.Entry{entry(1, "a", "A", "")}})
	r.Render(feed.View{Entries: []feed.Entry{entry(2, "b", "B", "")}})

	assert.Len(t, r.seen, 1)
	_, ok := r.seen[2]
	assert.True(t, ok)
}

func TestReconnectPolicy(t *testing.T) {
	fixed := reconnectPolicy(config.Config{Backoff: config.BackoffFixed, ReconnectDelay: 3 * time.Second})
	d, ok := fixed.Next(1000)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	capped := reconnectPolicy(config.Config{Backoff: config.BackoffExponential, ReconnectDelay: time.Second, MaxReconnects: 2})
	_, ok = capped.Next(2)
	assert.False(t, ok)
	d, ok = capped.Next(0)
	require.True(t, ok)
	assert.LessOrEqual(t, d, 30*time.Second)
}

func TestPromptApprover(t *testing.T) {
	summary := wallet.Summary{
		FeePayer:  solana.PublicKey{1},
		Transfers: []wallet.Transfer{{From: solana.PublicKey{1}, To: solana.PublicKey{2}, Lamports: 1_500_000_000}},
	}

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		approve := promptApprover(strings.NewReader(tt.input), &out)

		got, err := approve(context.Background(), summary)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "Send 1.5 SOL")
	}
}

func TestShortAddress(t *testing.T) {
	key := solana.PublicKey{1, 2, 3}
	s := shortAddress(key)
	assert.Equal(t, 19, len(s))
	assert.True(t, strings.HasPrefix(s, key.String()[:8]))
}

func TestApp_QuoteUSD(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"solana":{"usd":100}}`))
	}))
	defer server.Close()

	a := newApp(config.Config{PriceURL: server.URL}, zap.NewNop())

	usd, ok := a.quoteUSD(context.Background(), " 1.5 ")
	require.True(t, ok)
	assert.Equal(t, "150.00", usd)

	_, ok = a.quoteUSD(context.Background(), "abc")
	assert.False(t, ok)
}

func TestApp_QuoteUSDSharesBreaker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	a := newApp(config.Config{PriceURL: server.URL}, zap.NewNop())

	for i := 0; i < price.DefaultFailureThreshold+2; i++ {
		_, ok := a.quoteUSD(context.Background(), "1")
		assert.False(t, ok)
	}
	assert.Equal(t, int32(price.DefaultFailureThreshold), hits.Load(), "open breaker stops further requests")
}
