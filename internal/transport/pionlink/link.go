// Package pionlink implements transport.Transport on top of pion/webrtc.
package pionlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/config"
	"github.com/mossy-p/meshroom/internal/transport"
)

var ErrForeignTrack = errors.New("track was not created by pion")

type Transport struct {
	config pion.Configuration
	log    zerolog.Logger
}

// New builds a transport using the STUN and TURN servers of cfg.
func New(cfg *config.PeerConfig, log zerolog.Logger) *Transport {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}
	if turn := cfg.GetTURNServers(); turn != nil {
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turn,
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPass,
		})
	}
	return &Transport{
		config: pion.Configuration{ICEServers: iceServers},
		log:    log,
	}
}

func (t *Transport) CreateLink(remoteID string) (transport.Link, error) {
	pc, err := pion.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &Link{
		remoteID:     remoteID,
		pc:           pc,
		senders:      make(map[transport.Kind]*pion.RTPSender),
		placeholders: make(map[transport.Kind]*pion.TrackLocalStaticSample),
		log:          t.log.With().Str("remote_id", remoteID).Logger(),
	}, nil
}

type Link struct {
	remoteID string
	pc       *pion.PeerConnection

	mu      sync.Mutex
	senders map[transport.Kind]*pion.RTPSender
	// silent tracks that hold a sender while its kind has no source. pion refuses
	// to start a negotiated sender whose track is nil.
	placeholders map[transport.Kind]*pion.TrackLocalStaticSample

	log zerolog.Logger
}

func (l *Link) RemoteID() string { return l.remoteID }

func (l *Link) AttachLocalSource(kind transport.Kind, track transport.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.senders[kind]; ok {
		return fmt.Errorf("%s sender already attached", kind)
	}

	tl, err := l.trackOrPlaceholder(kind, track)
	if err != nil {
		return err
	}
	sender, err := l.pc.AddTrack(tl)
	if err != nil {
		return fmt.Errorf("add %s track: %w", kind, err)
	}

	l.senders[kind] = sender
	go drainRTCP(sender)
	return nil
}

func (l *Link) ReplaceSource(kind transport.Kind, track transport.Track) error {
	l.mu.Lock()
	sender := l.senders[kind]
	if sender == nil {
		l.mu.Unlock()
		return transport.ErrNoSenderForKind
	}
	tl, err := l.trackOrPlaceholder(kind, track)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	if err := sender.ReplaceTrack(tl); err != nil {
		return fmt.Errorf("replace %s track: %w", kind, err)
	}
	return nil
}

func (l *Link) CreateOffer() (json.RawMessage, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (l *Link) CreateAnswer() (json.RawMessage, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

func (l *Link) ApplyRemoteDescription(payload json.RawMessage) error {
	var desc pion.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("parse session description: %w", err)
	}
	return l.pc.SetRemoteDescription(desc)
}

func (l *Link) AddRemoteCandidate(payload json.RawMessage) error {
	var ice pion.ICECandidateInit
	if err := json.Unmarshal(payload, &ice); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	return l.pc.AddICECandidate(ice)
}

func (l *Link) OnRemoteTrack(fn func(transport.RemoteTrack)) {
	l.pc.OnTrack(func(tr *pion.TrackRemote, _ *pion.RTPReceiver) {
		kind := transport.KindAudio
		if tr.Kind() == pion.RTPCodecTypeVideo {
			kind = transport.KindVideo
		}
		l.log.Info().Str("track_id", tr.ID()).Str("codec", tr.Codec().MimeType).Msg("remote track")
		fn(transport.RemoteTrack{Kind: kind, ID: tr.ID(), StreamID: tr.StreamID(), Track: tr})
	})
}

func (l *Link) OnConnectionStateChange(fn func(transport.ConnectionState)) {
	l.pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		l.log.Debug().Str("state", s.String()).Msg("peer connection state")
		fn(connectionState(s))
	})
}

func (l *Link) OnLocalCandidate(fn func(json.RawMessage)) {
	l.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			l.log.Warn().Err(err).Msg("failed to encode local candidate")
			return
		}
		fn(payload)
	})
}

func (l *Link) Close() error {
	return l.pc.Close()
}

// trackOrPlaceholder resolves track, or the kind's placeholder when track is nil.
// Callers hold l.mu.
func (l *Link) trackOrPlaceholder(kind transport.Kind, track transport.Track) (pion.TrackLocal, error) {
	if track != nil {
		return localTrack(track)
	}
	if p, ok := l.placeholders[kind]; ok {
		return p, nil
	}
	p, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: placeholderMime(kind)}, kind.String()+"-placeholder", streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s placeholder: %w", kind, err)
	}
	l.placeholders[kind] = p
	return p, nil
}

func placeholderMime(kind transport.Kind) string {
	if kind == transport.KindVideo {
		return pion.MimeTypeVP8
	}
	return pion.MimeTypeOpus
}

func localTrack(track transport.Track) (pion.TrackLocal, error) {
	tl, ok := track.(pion.TrackLocal)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrForeignTrack, track)
	}
	return tl, nil
}

func connectionState(s pion.PeerConnectionState) transport.ConnectionState {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return transport.StateConnecting
	case pion.PeerConnectionStateConnected:
		return transport.StateConnected
	case pion.PeerConnectionStateDisconnected:
		return transport.StateDisconnected
	case pion.PeerConnectionStateFailed:
		return transport.StateFailed
	case pion.PeerConnectionStateClosed:
		return transport.StateClosed
	default:
		return transport.StateNew
	}
}

// drainRTCP reads incoming RTCP so interceptors such as NACK keep working.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
