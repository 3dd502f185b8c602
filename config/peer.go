package config

import (
	"fmt"
	"os"
	"strings"
)

// Default peer configuration values
const (
	DefaultServerURL = "http://localhost:8080"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// PeerConfig holds what a participant runtime needs to reach the coordinator
// and to build its peer links.
type PeerConfig struct {
	ServerURL  string
	RoomID     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	LogLevel   string
}

// PeerOptions carries CLI flag overrides.
type PeerOptions struct {
	ServerURL  string
	RoomID     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// LoadPeer resolves each field as CLI flag > environment > default.
func LoadPeer(opts PeerOptions) (*PeerConfig, error) {
	cfg := &PeerConfig{
		ServerURL:  pick(opts.ServerURL, "MESH_SERVER", DefaultServerURL),
		RoomID:     pick(opts.RoomID, "ROOM_ID", DefaultRoomID),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	if !strings.HasPrefix(cfg.ServerURL, "http://") && !strings.HasPrefix(cfg.ServerURL, "https://") {
		return nil, fmt.Errorf("server url must start with http:// or https://: %q", cfg.ServerURL)
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	return cfg, nil
}

// SignalURL returns the websocket endpoint for the configured room.
func (c *PeerConfig) SignalURL() string {
	return "ws" + strings.TrimPrefix(c.ServerURL, "http") + "/ws/signal/" + c.RoomID
}

// APIURL joins path onto the server's REST base.
func (c *PeerConfig) APIURL(path string) string {
	return c.ServerURL + "/api" + path
}

// GetSTUNServers returns STUN server URLs as strings
func (c *PeerConfig) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *PeerConfig) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}
