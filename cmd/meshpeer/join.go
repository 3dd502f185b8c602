package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mossy-p/meshroom/config"
	"github.com/mossy-p/meshroom/internal/client"
	"github.com/mossy-p/meshroom/internal/media"
	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/peer"
	"github.com/mossy-p/meshroom/internal/transport"
	"github.com/mossy-p/meshroom/internal/transport/pionlink"
)

var (
	flagUser     string
	flagPassword string
	flagToken    string
	flagCamera   string
	flagMic      string
)

var joinCmd = &cobra.Command{
	Use:     "join",
	Aliases: []string{"j"},
	Short:   "Join the room and stay in the call",
	Long: `Join the room and negotiate a direct link with every member.

Media files stand in for capture devices: IVF (VP8, VP9, AV1) for video and
Ogg/Opus for audio. Type help once joined for the interactive commands.

Examples:
  meshpeer join --user alice@example.com --camera cam.ivf --mic voice.ogg
  meshpeer join --server https://mesh.example.com --token $TOKEN`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runJoin(ctx, cfg, os.Stdin, os.Stdout)
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagUser, "user", "u", "", "login identity")
	joinCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "login password")
	joinCmd.Flags().StringVar(&flagToken, "token", "", "signaling token, skips login")
	joinCmd.Flags().StringVar(&flagCamera, "camera", "", "IVF file used as camera")
	joinCmd.Flags().StringVar(&flagMic, "mic", "", "Ogg/Opus file used as microphone")
}

func runJoin(ctx context.Context, cfg *config.PeerConfig, in io.Reader, out io.Writer) error {
	log := newLogger(cfg.LogLevel)

	token := flagToken
	if token == "" {
		if flagUser == "" {
			return errors.New("either --user or --token is required")
		}
		resp, err := client.Login(ctx, cfg, flagUser, flagPassword)
		if err != nil {
			return err
		}
		token = resp.Token
		fmt.Fprintf(out, "logged in as %s (%s)\n", resp.Identity, resp.Role)
	}

	camera, err := openOptional(flagCamera, "camera", log)
	if err != nil {
		return err
	}
	mic, err := openOptional(flagMic, "microphone", log)
	if err != nil {
		if camera != nil {
			camera.Stop()
		}
		return err
	}
	ctrl := media.NewController(camera, mic, log)

	conn, err := client.Dial(ctx, cfg.SignalURL(), token, log)
	if err != nil {
		ctrl.Close()
		return err
	}

	session := client.NewSession(conn, pionlink.New(cfg, log), ctrl, printHooks(out), log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readCommands(ctx, cancel, session, in, out, log)

	err = session.Run(ctx)
	fmt.Fprintln(out, "left the room")
	return err
}

// openOptional returns a nil Source, not a typed nil, when path is empty.
func openOptional(path, label string, log zerolog.Logger) (media.Source, error) {
	if path == "" {
		return nil, nil
	}
	src, err := pionlink.OpenFileSource(path, label, log)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", label, err)
	}
	return src, nil
}

func printHooks(out io.Writer) client.Hooks {
	return client.Hooks{
		OnJoined: func(self models.Participant, members []models.Participant) {
			fmt.Fprintf(out, "joined as %s (%s), %d in room\n", self.ID, self.Role, len(members))
			renderMembers(out, self, members)
		},
		OnMemberJoined: func(p models.Participant) {
			fmt.Fprintf(out, "+ %s (%s) joined\n", p.Identity, p.ID)
		},
		OnMemberLeft: func(p models.Participant) {
			fmt.Fprintf(out, "- %s (%s) left\n", p.Identity, p.ID)
		},
		OnLinkState: func(info peer.LinkInfo) {
			fmt.Fprintf(out, "link %s: %s (%s)\n", info.RemoteID, info.State, info.Role)
		},
		OnLinkClosed: func(remoteID string) {
			fmt.Fprintf(out, "link %s closed\n", remoteID)
		},
		OnRemoteTrack: func(remoteID string, t transport.RemoteTrack) {
			fmt.Fprintf(out, "receiving %s from %s\n", t.Kind, remoteID)
		},
		OnAdminCommand: func(cmd models.AdminCommand) {
			fmt.Fprintf(out, "admin %s applied %s\n", cmd.IssuerID, cmd.Kind)
		},
		OnError: func(msg models.SignalMessage) {
			fmt.Fprintf(out, "coordinator: %s\n", msg.Error)
		},
	}
}

func readCommands(ctx context.Context, cancel context.CancelFunc, s *client.Session, in io.Reader, out io.Writer, log zerolog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd, err := parseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if err := execute(ctx, s, cmd, out, log); err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, client.ErrSessionClosed) {
				cancel()
				return
			}
			fmt.Fprintln(out, "error:", err)
		}
	}
}

func execute(ctx context.Context, s *client.Session, cmd command, out io.Writer, log zerolog.Logger) error {
	switch cmd.Kind {
	case cmdQuit:
		return errQuit
	case cmdHelp:
		fmt.Fprintln(out, helpText)
		return nil
	case cmdAdmin:
		return s.SendAdminCommand(cmd.Admin, cmd.Target)
	}

	// opening a file source does IO, keep it off the session goroutine
	var src media.Source
	if cmd.Path != "" {
		var err error
		if src, err = pionlink.OpenFileSource(cmd.Path, sourceLabel(cmd.Kind), log); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return handoff(ctx, s.Do, src, func() error {
		m := s.Media()
		switch cmd.Kind {
		case cmdSubstitute:
			if src == nil {
				m.DeactivateSubstitute()
				return nil
			}
			return m.ActivateSubstitute(src)
		case cmdScreen:
			if src == nil {
				m.DeactivateScreen()
				return nil
			}
			return m.ActivateScreen(src)
		case cmdFilter:
			if src == nil {
				m.DeactivateVoiceFilter()
				return nil
			}
			return m.ActivateVoiceFilter(src)
		case cmdMute:
			fmt.Fprintf(out, "microphone enabled: %t\n", m.Toggle(transport.KindAudio))
		case cmdCamera:
			fmt.Fprintf(out, "camera enabled: %t\n", m.Toggle(transport.KindVideo))
		case cmdMembers:
			renderMembers(out, s.Self(), s.Members())
		case cmdLinks:
			renderLinks(out, s.Links())
		case cmdStatus:
			st := m.Status()
			fmt.Fprintf(out, "video %s (enabled %t), audio %s (enabled %t)\n", st.Video, st.VideoEnabled, st.Audio, st.AudioEnabled)
		}
		return nil
	})
}

// handoff runs apply on the session goroutine through do. Whoever claims the
// command first owns src: apply when it runs in time, the caller when do gave up
// first. apply returns an error only when it did not keep src.
func handoff(ctx context.Context, do func(context.Context, func() error) error, src media.Source, apply func() error) error {
	var claimed atomic.Bool
	err := do(ctx, func() error {
		if !claimed.CompareAndSwap(false, true) {
			return nil
		}
		err := apply()
		if err != nil && src != nil {
			src.Stop()
		}
		return err
	})
	if err != nil && claimed.CompareAndSwap(false, true) && src != nil {
		src.Stop()
	}
	return err
}

func sourceLabel(kind commandKind) string {
	switch kind {
	case cmdSubstitute:
		return "substitute"
	case cmdScreen:
		return "screen"
	default:
		return "voice-filter"
	}
}

func renderLinks(w io.Writer, links []peer.LinkInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Remote", "State", "Role", "Queued candidates"})
	for _, l := range links {
		t.AppendRow(table.Row{l.RemoteID, l.State, l.Role, l.Pending})
	}
	t.Render()
}
