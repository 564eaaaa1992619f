package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwaiseghegift/tg-utils-bot/internal/relay"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var received map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL)
	require.NoError(t, n.Notify(context.Background(), "hello"))
	require.Equal(t, "hello", received["content"])
}

func TestDiscordNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL)
	require.Error(t, n.Notify(context.Background(), "hello"))
}

func TestDiscordNotifier_MissingWebhook(t *testing.T) {
	n := NewDiscordNotifier("")
	require.Error(t, n.Notify(context.Background(), "hello"))
}

func TestTerminalMessage(t *testing.T) {
	tests := []struct {
		name  string
		state relay.State
		want  string
	}{
		{
			name:  "completed",
			state: relay.StateCompleted,
			want:  "✅ movie.mp4 (4.0 KB) delivered for alice in 3s",
		},
		{
			name:  "cancelled",
			state: relay.StateCancelled,
			want:  "🚫 transfer of movie.mp4 cancelled by alice after 4.0 KB",
		},
		{
			name:  "rejected",
			state: relay.StateRejected,
			want:  "⛔ transfer for alice rejected: too big",
		},
		{
			name:  "failed",
			state: relay.StateFailed,
			want:  "❌ transfer of movie.mp4 for alice failed: too big",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &relay.Outcome{
				Snapshot: &relay.Snapshot{
					OwnerID:          "alice",
					Filename:         "movie.mp4",
					State:            tt.state,
					BytesTransferred: 4096,
					Elapsed:          3 * time.Second,
					Reason:           "too big",
				},
			}

			require.Equal(t, tt.want, terminalMessage(out))
		})
	}
}
