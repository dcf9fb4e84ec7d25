package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jamroom/jamroom/internal/playback"
)

// ClientConfig is what the server hands every participant before it joins.
type ClientConfig struct {
	STUNServers []string `json:"stun_servers"`
	Sync        struct {
		FollowerDriftSec    float64 `json:"follower_drift_sec"`
		WriteSuppressionSec float64 `json:"write_suppression_sec"`
		IntervalMs          int64   `json:"interval_ms"`
	} `json:"sync"`
}

// Tolerances converts the served sync section into controller tolerances.
func (c *ClientConfig) Tolerances() playback.Tolerances {
	return playback.Tolerances{
		FollowerDrift:    c.Sync.FollowerDriftSec,
		WriteSuppression: c.Sync.WriteSuppressionSec,
		SyncInterval:     time.Duration(c.Sync.IntervalMs) * time.Millisecond,
	}
}

// FetchClientConfig pulls the shared client configuration from the server,
// so all participants of a deployment run with identical thresholds.
func FetchClientConfig(ctx context.Context, baseURL string) (*ClientConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/client-config", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch client config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch client config: unexpected status %d", resp.StatusCode)
	}
	var cfg ClientConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
