package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrelmoor/harvester-cli/internal/config"
)

func newTestSession(t *testing.T, cfg config.BrowserConfig) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := newSession(ctx, cancel, cfg, config.AuthSelectors{}, zap.NewNop())
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestCookieToParam(t *testing.T) {
	t.Run("preserves expiry", func(t *testing.T) {
		c := &network.Cookie{
			Name:     "li_at",
			Value:    "token",
			Domain:   ".linkedin.com",
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
			Expires:  1767225600, // 2026-01-01T00:00:00Z
		}
		p := cookieToParam(c)

		assert.Equal(t, "li_at", p.Name)
		assert.Equal(t, ".linkedin.com", p.Domain)
		assert.True(t, p.Secure)
		require.NotNil(t, p.Expires)
		assert.Equal(t, int64(1767225600), time.Time(*p.Expires).Unix())
	})

	t.Run("session cookies keep a nil expiry", func(t *testing.T) {
		p := cookieToParam(&network.Cookie{Name: "JSESSIONID", Expires: -1})
		assert.Nil(t, p.Expires)
	})
}

func TestSettle(t *testing.T) {
	t.Run("returns immediately without a configured wait", func(t *testing.T) {
		s := newTestSession(t, config.BrowserConfig{})
		require.NoError(t, s.Settle(context.Background()))
	})

	t.Run("honors caller cancellation", func(t *testing.T) {
		s := newTestSession(t, config.BrowserConfig{PostLoadWait: time.Minute})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.Settle(ctx), context.Canceled)
	})
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := newTestSession(t, config.BrowserConfig{})

	calls := 0
	s.SetOnClose(func() { calls++ })

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestApplySessionRejectsNil(t *testing.T) {
	s := newTestSession(t, config.BrowserConfig{})
	assert.Error(t, s.ApplySession(context.Background(), nil))
}
