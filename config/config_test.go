package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROOM_ID", "")
	t.Setenv("MAX_PARTICIPANTS", "")
	t.Setenv("PRIVILEGED_IDENTITIES", "")

	cfg := Load()
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, DefaultRoomID, cfg.RoomID)
	require.Equal(t, 8, cfg.MaxParticipants)
	require.Empty(t, cfg.PrivilegedIdentities)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadPrivilegedIdentities(t *testing.T) {
	t.Setenv("PRIVILEGED_IDENTITIES", "owner@huss.com, ,admin@huss.com")
	t.Setenv("MAX_PARTICIPANTS", "not-a-number")

	cfg := Load()
	require.Equal(t, []string{"owner@huss.com", "admin@huss.com"}, cfg.PrivilegedIdentities)
	require.True(t, cfg.IsPrivileged("owner@huss.com"))
	require.False(t, cfg.IsPrivileged("user01@huss.com"))
	require.Equal(t, 8, cfg.MaxParticipants)
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLogLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, ParseLogLevel("WARNING"))
	require.Equal(t, zerolog.ErrorLevel, ParseLogLevel("production"))
	require.Equal(t, zerolog.InfoLevel, ParseLogLevel("whatever"))
}

func TestLoadPeer(t *testing.T) {
	t.Setenv("MESH_SERVER", "https://mesh.example.com/")
	t.Setenv("ROOM_ID", "")

	cfg, err := LoadPeer(PeerOptions{})
	require.NoError(t, err)
	require.Equal(t, "wss://mesh.example.com/ws/signal/"+DefaultRoomID, cfg.SignalURL())
	require.Equal(t, "https://mesh.example.com/api/rooms/x", cfg.APIURL("/rooms/x"))
	require.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	require.Nil(t, cfg.GetTURNServers())

	cfg, err = LoadPeer(PeerOptions{ServerURL: "http://127.0.0.1:9000", RoomID: "r1", TURNServer: "turn:t.example.com"})
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:9000/ws/signal/r1", cfg.SignalURL())
	require.Len(t, cfg.GetTURNServers(), 2)

	_, err = LoadPeer(PeerOptions{ServerURL: "ftp://nope"})
	require.Error(t, err)
}
