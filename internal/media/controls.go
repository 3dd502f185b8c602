package media

import (
	"fmt"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/transport"
)

// ApplyAdminCommand carries out a command received from the privileged participant.
func (c *Controller) ApplyAdminCommand(cmd models.AdminCommand) error {
	l := c.log.With().Str("issuer_id", cmd.IssuerID).Str("kind", string(cmd.Kind)).Logger()

	switch cmd.Kind {
	case models.AdminToggleMute:
		enabled := c.Toggle(transport.KindAudio)
		l.Info().Bool("audio_enabled", enabled).Msg("admin toggled microphone")
	case models.AdminToggleCamera:
		enabled := c.Toggle(transport.KindVideo)
		l.Info().Bool("video_enabled", enabled).Msg("admin toggled camera")
	case models.AdminClearSubstitute:
		c.DeactivateSubstitute()
		l.Info().Msg("admin cleared substitute video")
	case models.AdminClearVoiceFilter:
		c.DeactivateVoiceFilter()
		l.Info().Msg("admin cleared voice filter")
	default:
		return fmt.Errorf("unknown admin command %q", cmd.Kind)
	}
	return nil
}

// Status is a snapshot for display.
type Status struct {
	Video        VideoSource
	Audio        AudioSource
	VideoEnabled bool
	AudioEnabled bool
}

func (c *Controller) Status() Status {
	return Status{
		Video:        c.ActiveVideo(),
		Audio:        c.ActiveAudio(),
		VideoEnabled: c.videoEnabled,
		AudioEnabled: c.audioEnabled,
	}
}
