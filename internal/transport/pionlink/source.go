package pionlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/transport"
)

const (
	oggPageDuration = 20 * time.Millisecond
	opusSampleRate  = 48000
	streamID        = "meshroom"
)

var ErrUnsupportedFile = errors.New("unsupported media file")

// FileSource loops an IVF video or Ogg/Opus audio file into a local track. It stands
// in for capture devices, substitute video and processed voice.
type FileSource struct {
	path  string
	kind  transport.Kind
	track *pion.TrackLocalStaticSample

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	log zerolog.Logger
}

// OpenFileSource inspects path and starts streaming it. label becomes the track id.
func OpenFileSource(path, label string, log zerolog.Logger) (*FileSource, error) {
	var (
		kind transport.Kind
		mime string
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ivf":
		kind = transport.KindVideo
		codec, err := ivfCodec(path)
		if err != nil {
			return nil, err
		}
		mime = codec
	case ".ogg", ".opus":
		kind = transport.KindAudio
		mime = pion.MimeTypeOpus
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: mime}, label, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &FileSource{
		path:   path,
		kind:   kind,
		track:  track,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log.With().Str("source", label).Str("path", path).Logger(),
	}
	go s.run(ctx)
	return s, nil
}

func (s *FileSource) Kind() transport.Kind { return s.kind }

func (s *FileSource) Track() transport.Track { return s.track }

// Stop ends streaming and waits for the reader to exit. Safe to call more than once.
func (s *FileSource) Stop() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.log.Debug().Msg("source stopped")
	})
	return nil
}

func (s *FileSource) run(ctx context.Context) {
	defer close(s.done)
	for {
		var err error
		if s.kind == transport.KindVideo {
			err = s.playIVF(ctx)
		} else {
			err = s.playOgg(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("media file playback failed")
			return
		}
		// reached the end, loop
	}
}

func (s *FileSource) playIVF(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ivf header: %w", err)
	}
	frameDuration := time.Millisecond * time.Duration((float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
	if frameDuration <= 0 {
		frameDuration = 33 * time.Millisecond
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ivf frame: %w", err)
		}
		if err := s.track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return fmt.Errorf("write video sample: %w", err)
		}
	}
}

func (s *FileSource) playOgg(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}

	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		page, pageHeader, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ogg page: %w", err)
		}

		samples := float64(pageHeader.GranulePosition - lastGranule)
		lastGranule = pageHeader.GranulePosition
		duration := time.Duration((samples / opusSampleRate) * float64(time.Second))
		if err := s.track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return fmt.Errorf("write audio sample: %w", err)
		}
	}
}

func ivfCodec(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", fmt.Errorf("read ivf header: %w", err)
	}
	switch header.FourCC {
	case "VP80":
		return pion.MimeTypeVP8, nil
	case "VP90":
		return pion.MimeTypeVP9, nil
	case "AV01":
		return pion.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("%w: ivf codec %q", ErrUnsupportedFile, header.FourCC)
	}
}
