package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mossy-p/meshroom/config"
	"github.com/mossy-p/meshroom/internal/models"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Login exchanges credentials for a signaling token.
func Login(ctx context.Context, cfg *config.PeerConfig, username, password string) (models.LoginResponse, error) {
	var out models.LoginResponse

	body, err := json.Marshal(models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL("/auth/login"), bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := doJSON(req, &out); err != nil {
		return out, fmt.Errorf("login: %w", err)
	}
	return out, nil
}

// FetchRoom returns the coordinator's view of the configured room.
func FetchRoom(ctx context.Context, cfg *config.PeerConfig) (models.RoomInfo, error) {
	var out models.RoomInfo

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIURL("/rooms/"+cfg.RoomID), nil)
	if err != nil {
		return out, err
	}
	if err := doJSON(req, &out); err != nil {
		return out, fmt.Errorf("fetch room %s: %w", cfg.RoomID, err)
	}
	return out, nil
}

func doJSON(req *http.Request, v any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
