// Package media decides which local source feeds each outgoing kind and pushes the
// decision to every live link.
package media

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/transport"
)

var ErrWrongKind = errors.New("source has the wrong media kind")

// Source is a local producer of one media kind.
type Source interface {
	Kind() transport.Kind
	Track() transport.Track
	Stop() error
}

type VideoSource int

const (
	VideoNone VideoSource = iota
	VideoCamera
	VideoScreen
	VideoSubstitute
)

func (v VideoSource) String() string {
	switch v {
	case VideoCamera:
		return "camera"
	case VideoScreen:
		return "screen"
	case VideoSubstitute:
		return "substitute"
	default:
		return "none"
	}
}

type AudioSource int

const (
	AudioNone AudioSource = iota
	AudioMicrophone
	AudioFiltered
)

func (a AudioSource) String() string {
	switch a {
	case AudioMicrophone:
		return "microphone"
	case AudioFiltered:
		return "filtered"
	default:
		return "none"
	}
}

// LinkSet yields the links that should receive source changes.
type LinkSet interface {
	ActiveLinks() []transport.Link
}

// Controller is not safe for concurrent use. It runs on the session goroutine,
// like the peer manager.
type Controller struct {
	links LinkSet

	camera     Source
	microphone Source

	// at most one video override is held at a time
	substitute Source
	screen     Source
	filtered   Source

	videoEnabled bool
	audioEnabled bool

	sent map[transport.Kind]transport.Track

	log zerolog.Logger
}

// NewController takes the raw capture sources. Either may be nil.
func NewController(camera, microphone Source, log zerolog.Logger) *Controller {
	return &Controller{
		camera:       camera,
		microphone:   microphone,
		videoEnabled: true,
		audioEnabled: true,
		sent:         make(map[transport.Kind]transport.Track),
		log:          log.With().Str("component", "media").Logger(),
	}
}

// SetLinks binds the controller to the links it updates.
func (c *Controller) SetLinks(links LinkSet) {
	c.links = links
}

func (c *Controller) ActiveVideo() VideoSource {
	switch {
	case c.substitute != nil:
		return VideoSubstitute
	case c.screen != nil:
		return VideoScreen
	case c.camera != nil:
		return VideoCamera
	default:
		return VideoNone
	}
}

func (c *Controller) ActiveAudio() AudioSource {
	switch {
	case c.filtered != nil:
		return AudioFiltered
	case c.microphone != nil:
		return AudioMicrophone
	default:
		return AudioNone
	}
}

func (c *Controller) effective(kind transport.Kind) Source {
	if kind == transport.KindVideo {
		switch {
		case c.substitute != nil:
			return c.substitute
		case c.screen != nil:
			return c.screen
		default:
			return c.camera
		}
	}
	if c.filtered != nil {
		return c.filtered
	}
	return c.microphone
}

// Track is what links of kind should carry right now. nil means nothing.
func (c *Controller) Track(kind transport.Kind) transport.Track {
	if !c.Enabled(kind) {
		return nil
	}
	src := c.effective(kind)
	if src == nil {
		return nil
	}
	return src.Track()
}

func (c *Controller) Enabled(kind transport.Kind) bool {
	if kind == transport.KindVideo {
		return c.videoEnabled
	}
	return c.audioEnabled
}

// SetEnabled turns sending of kind on or off without releasing any source.
func (c *Controller) SetEnabled(kind transport.Kind, enabled bool) {
	if kind == transport.KindVideo {
		c.videoEnabled = enabled
	} else {
		c.audioEnabled = enabled
	}
	c.apply(kind)
}

// Toggle flips kind and returns the new enabled state.
func (c *Controller) Toggle(kind transport.Kind) bool {
	enabled := !c.Enabled(kind)
	c.SetEnabled(kind, enabled)
	return enabled
}

// ActivateSubstitute replaces outgoing video with src. An active screen share is
// released.
func (c *Controller) ActivateSubstitute(src Source) error {
	if err := checkKind(src, transport.KindVideo); err != nil {
		return err
	}
	prev := c.videoOverride()
	c.substitute, c.screen = src, nil
	c.apply(transport.KindVideo)
	c.release(prev, src)
	c.log.Info().Str("track", src.Track().ID()).Msg("substitute video active")
	return nil
}

func (c *Controller) DeactivateSubstitute() {
	if c.substitute == nil {
		return
	}
	prev := c.substitute
	c.substitute = nil
	c.apply(transport.KindVideo)
	c.release(prev, nil)
	c.log.Info().Msg("substitute video cleared")
}

// ActivateScreen replaces outgoing video with a screen share. An active substitute
// is released.
func (c *Controller) ActivateScreen(src Source) error {
	if err := checkKind(src, transport.KindVideo); err != nil {
		return err
	}
	prev := c.videoOverride()
	c.screen, c.substitute = src, nil
	c.apply(transport.KindVideo)
	c.release(prev, src)
	c.log.Info().Str("track", src.Track().ID()).Msg("screen share active")
	return nil
}

func (c *Controller) DeactivateScreen() {
	if c.screen == nil {
		return
	}
	prev := c.screen
	c.screen = nil
	c.apply(transport.KindVideo)
	c.release(prev, nil)
	c.log.Info().Msg("screen share stopped")
}

// ActivateVoiceFilter replaces outgoing audio with a processed stream.
func (c *Controller) ActivateVoiceFilter(src Source) error {
	if err := checkKind(src, transport.KindAudio); err != nil {
		return err
	}
	prev := c.filtered
	c.filtered = src
	c.apply(transport.KindAudio)
	c.release(prev, src)
	c.log.Info().Str("track", src.Track().ID()).Msg("voice filter active")
	return nil
}

func (c *Controller) DeactivateVoiceFilter() {
	if c.filtered == nil {
		return
	}
	prev := c.filtered
	c.filtered = nil
	c.apply(transport.KindAudio)
	c.release(prev, nil)
	c.log.Info().Msg("voice filter cleared")
}

func (c *Controller) videoOverride() Source {
	if c.substitute != nil {
		return c.substitute
	}
	return c.screen
}

// AttachLink gives a new link a sender per kind carrying the current sources.
func (c *Controller) AttachLink(l transport.Link) {
	for _, kind := range []transport.Kind{transport.KindAudio, transport.KindVideo} {
		if err := l.AttachLocalSource(kind, c.Track(kind)); err != nil {
			c.log.Warn().Err(err).Str("remote_id", l.RemoteID()).Stringer("kind", kind).Msg("failed to attach local source")
		}
	}
}

// apply pushes the current track of kind to every link. A link that rejects the
// swap is skipped.
func (c *Controller) apply(kind transport.Kind) {
	track := c.Track(kind)
	if cur, ok := c.sent[kind]; ok && cur == track {
		return
	}
	c.sent[kind] = track

	if c.links == nil {
		return
	}
	for _, l := range c.links.ActiveLinks() {
		err := l.ReplaceSource(kind, track)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrNoSenderForKind):
			c.log.Debug().Str("remote_id", l.RemoteID()).Stringer("kind", kind).Msg("link has no sender, skipping")
		default:
			c.log.Warn().Err(err).Str("remote_id", l.RemoteID()).Stringer("kind", kind).Msg("failed to replace source")
		}
	}
}

// release stops a source that no longer feeds anything.
func (c *Controller) release(prev, next Source) {
	if prev == nil || prev == next {
		return
	}
	if err := prev.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("failed to stop source")
	}
}

// Close stops every source the controller holds.
func (c *Controller) Close() {
	for _, src := range []Source{c.substitute, c.screen, c.filtered, c.camera, c.microphone} {
		c.release(src, nil)
	}
	c.substitute, c.screen, c.filtered = nil, nil, nil
	c.camera, c.microphone = nil, nil
}

func checkKind(src Source, want transport.Kind) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrWrongKind)
	}
	if src.Kind() != want {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongKind, src.Kind(), want)
	}
	return nil
}
