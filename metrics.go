package main

import (
	"context"
	"log/slog"
	"time"

	"vlhub/hub/internal/conn"
)

// RunMetrics logs hub-wide stats every interval until ctx is canceled.
func RunMetrics(ctx context.Context, hub *conn.Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			users := hub.Directory.Count()
			share := hub.ShareTotal()
			if users > 0 {
				slog.Info("hub stats", "users", users, "share_total_bytes", share)
			}
		}
	}
}
