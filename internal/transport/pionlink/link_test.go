package pionlink

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/meshroom/config"
	"github.com/mossy-p/meshroom/internal/transport"
	"github.com/mossy-p/meshroom/internal/transport/transporttest"
)

func newTestTransport() *Transport {
	return New(&config.PeerConfig{}, zerolog.Nop())
}

func TestNewUsesConfiguredICEServers(t *testing.T) {
	tr := New(&config.PeerConfig{
		STUNServer: "stun:stun.example.com:3478",
		TURNServer: "turn:turn.example.com",
		TURNUser:   "u",
		TURNPass:   "p",
	}, zerolog.Nop())

	require.Len(t, tr.config.ICEServers, 2)
	require.Equal(t, []string{"stun:stun.example.com:3478"}, tr.config.ICEServers[0].URLs)
	require.Equal(t, "u", tr.config.ICEServers[1].Username)
	require.Len(t, tr.config.ICEServers[1].URLs, 2)

	require.Empty(t, newTestTransport().config.ICEServers)
}

func TestOfferAnswerExchange(t *testing.T) {
	tr := newTestTransport()

	a, err := tr.CreateLink("b")
	require.NoError(t, err)
	defer a.Close()
	b, err := tr.CreateLink("a")
	require.NoError(t, err)
	defer b.Close()

	video, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "camera", streamID)
	require.NoError(t, err)

	for _, l := range []transport.Link{a, b} {
		require.NoError(t, l.AttachLocalSource(transport.KindVideo, video))
		require.NoError(t, l.AttachLocalSource(transport.KindAudio, nil))
	}

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	require.Contains(t, string(offer), `"type":"offer"`)

	require.NoError(t, b.ApplyRemoteDescription(offer))
	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	require.Contains(t, string(answer), `"type":"answer"`)
	require.NoError(t, a.ApplyRemoteDescription(answer))

	// swapping and clearing tracks needs no renegotiation
	sub, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "substitute", streamID)
	require.NoError(t, err)
	require.NoError(t, a.ReplaceSource(transport.KindVideo, sub))
	require.NoError(t, a.ReplaceSource(transport.KindVideo, nil))
}

func TestAnswerWithoutLocalSource(t *testing.T) {
	tr := newTestTransport()

	a, err := tr.CreateLink("b")
	require.NoError(t, err)
	defer a.Close()
	b, err := tr.CreateLink("a")
	require.NoError(t, err)
	defer b.Close()

	mic, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "microphone", streamID)
	require.NoError(t, err)
	require.NoError(t, a.AttachLocalSource(transport.KindAudio, mic))
	require.NoError(t, a.AttachLocalSource(transport.KindVideo, nil))
	// b joined without any capture device
	require.NoError(t, b.AttachLocalSource(transport.KindAudio, nil))
	require.NoError(t, b.AttachLocalSource(transport.KindVideo, nil))

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, b.ApplyRemoteDescription(offer))
	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, a.ApplyRemoteDescription(answer))

	// disabling a kind after negotiation must not break the next exchange
	require.NoError(t, a.ReplaceSource(transport.KindAudio, nil))
	offer, err = a.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, b.ApplyRemoteDescription(offer))
	answer, err = b.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, a.ApplyRemoteDescription(answer))

	require.NoError(t, a.ReplaceSource(transport.KindAudio, mic))
}

func TestReplaceSourceErrors(t *testing.T) {
	l, err := newTestTransport().CreateLink("b")
	require.NoError(t, err)
	defer l.Close()

	require.ErrorIs(t, l.ReplaceSource(transport.KindVideo, nil), transport.ErrNoSenderForKind)

	require.NoError(t, l.AttachLocalSource(transport.KindVideo, nil))
	require.Error(t, l.AttachLocalSource(transport.KindVideo, nil))
	require.ErrorIs(t, l.ReplaceSource(transport.KindVideo, &transporttest.FakeTrack{Name: "x"}), ErrForeignTrack)
}

func TestBadPayloads(t *testing.T) {
	l, err := newTestTransport().CreateLink("b")
	require.NoError(t, err)
	defer l.Close()

	require.Error(t, l.ApplyRemoteDescription([]byte(`not json`)))
	require.Error(t, l.AddRemoteCandidate([]byte(`not json`)))
}

func TestConnectionStateMapping(t *testing.T) {
	cases := map[pion.PeerConnectionState]transport.ConnectionState{
		pion.PeerConnectionStateNew:          transport.StateNew,
		pion.PeerConnectionStateConnecting:   transport.StateConnecting,
		pion.PeerConnectionStateConnected:    transport.StateConnected,
		pion.PeerConnectionStateDisconnected: transport.StateDisconnected,
		pion.PeerConnectionStateFailed:       transport.StateFailed,
		pion.PeerConnectionStateClosed:       transport.StateClosed,
	}
	for in, want := range cases {
		require.Equal(t, want, connectionState(in), in.String())
	}
}

func writeIVFHeader(t *testing.T, fourCC string) string {
	t.Helper()
	hdr := make([]byte, 32)
	copy(hdr[0:4], "DKIF")
	binary.LittleEndian.PutUint16(hdr[4:], 0)
	binary.LittleEndian.PutUint16(hdr[6:], 32)
	copy(hdr[8:12], fourCC)
	binary.LittleEndian.PutUint16(hdr[12:], 640)
	binary.LittleEndian.PutUint16(hdr[14:], 480)
	binary.LittleEndian.PutUint32(hdr[16:], 30)
	binary.LittleEndian.PutUint32(hdr[20:], 1)
	binary.LittleEndian.PutUint32(hdr[24:], 0)

	path := filepath.Join(t.TempDir(), "clip.ivf")
	require.NoError(t, os.WriteFile(path, hdr, 0o600))
	return path
}

func TestOpenFileSource(t *testing.T) {
	path := writeIVFHeader(t, "VP80")
	src, err := OpenFileSource(path, "substitute", zerolog.Nop())
	require.NoError(t, err)

	require.Equal(t, transport.KindVideo, src.Kind())
	require.Equal(t, "substitute", src.Track().ID())

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
}

func TestOpenFileSourceRejectsUnknown(t *testing.T) {
	_, err := OpenFileSource("clip.mp4", "x", zerolog.Nop())
	require.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = OpenFileSource(writeIVFHeader(t, "H264"), "x", zerolog.Nop())
	require.ErrorIs(t, err, ErrUnsupportedFile)
}
