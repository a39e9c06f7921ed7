package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"vlhub/hub/internal/conn"
)

// registerWithHublist announces this hub to a public hublist server over a
// simple GET-based registration protocol (address, name, user count, share
// total, topic). Grounded on the teacher's fetchLinkPreview: a short-timeout
// http.Client, an explicit User-Agent, and redirect-limited GET — the same
// "best-effort outbound HTTP call that must never block the caller" shape,
// here driving a scheduled announcement instead of an inline chat-link fetch.
func registerWithHublist(ctx context.Context, hublistURL string, hub *conn.Hub, publicAddr string) error {
	if hublistURL == "" {
		return nil
	}

	q := url.Values{}
	q.Set("address", publicAddr)
	q.Set("name", hub.Config.HubName)
	q.Set("users", strconv.Itoa(hub.Directory.Count()))
	q.Set("share", strconv.FormatInt(hub.ShareTotal(), 10))
	q.Set("topic", hub.Config.Topic)

	reqURL := hublistURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build hublist request: %w", err)
	}
	req.Header.Set("User-Agent", "verlihub-go/1.0")

	client := &http.Client{
		Timeout: hublistRequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("hublist request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("hublist returned status %d", resp.StatusCode)
	}

	slog.Debug("hublist registration sent", "url", hublistURL, "status", resp.StatusCode)
	return nil
}
