package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"artstudio/internal/api"
	"artstudio/internal/config"
)

const daemonProbeTimeout = 2 * time.Second

// probeDaemon asks a running daemon for its status over the HTTP API. A nil
// status with a nil error means nothing is listening.
func probeDaemon(ctx context.Context, cfg *config.Config) (*api.DaemonStatus, error) {
	base := daemonBaseURL(cfg.Paths.APIBind)
	if base == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("daemon at %s rejected the API token", base)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon at %s answered %s", base, resp.Status)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}

// daemonBaseURL turns a listen address into a dialable URL, mapping
// wildcard hosts to loopback.
func daemonBaseURL(bind string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil || port == "" || port == "0" {
		return ""
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
