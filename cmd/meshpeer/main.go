package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mossy-p/meshroom/config"
)

var (
	flagServer   string
	flagRoom     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
)

var rootCmd = &cobra.Command{
	Use:   "meshpeer",
	Short: "Join a meshroom call from the terminal",
	Long: `meshpeer is a participant for a meshroom coordinator. It joins the room,
negotiates a direct link with every other member and streams media files
as camera, microphone, substitute video or filtered voice.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "coordinator base URL (env MESH_SERVER)")
	rootCmd.PersistentFlags().StringVar(&flagRoom, "room", "", "room id (env ROOM_ID)")
	rootCmd.PersistentFlags().StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	rootCmd.PersistentFlags().StringVar(&flagTURN, "turn", "", "TURN server host (env TURN_SERVER)")
	rootCmd.PersistentFlags().StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	rootCmd.PersistentFlags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")

	rootCmd.AddCommand(joinCmd, membersCmd)
}

func loadConfig() (*config.PeerConfig, error) {
	return config.LoadPeer(config.PeerOptions{
		ServerURL:  flagServer,
		RoomID:     flagRoom,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	})
}

func newLogger(level string) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(config.ParseLogLevel(level)).With().Timestamp().Logger()
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
