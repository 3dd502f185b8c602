// Package transporttest provides in-memory transport fakes for tests.
package transporttest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mossy-p/meshroom/internal/transport"
)

var ErrNoRemoteDescription = errors.New("remote description not set")

type FakeTrack struct {
	Name string
}

func (t *FakeTrack) ID() string { return t.Name }

// FakeSource counts how often it was stopped.
type FakeSource struct {
	mu    sync.Mutex
	kind  transport.Kind
	track *FakeTrack
	stops int
}

func NewFakeSource(kind transport.Kind, name string) *FakeSource {
	return &FakeSource{kind: kind, track: &FakeTrack{Name: name}}
}

func (s *FakeSource) Kind() transport.Kind { return s.kind }

func (s *FakeSource) Track() transport.Track { return s.track }

func (s *FakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *FakeSource) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Replacement records one ReplaceSource call.
type Replacement struct {
	Kind  transport.Kind
	Track transport.Track
}

type FakeLink struct {
	mu sync.Mutex

	remoteID      string
	local         string
	senders       map[transport.Kind]transport.Track
	hasSender     map[transport.Kind]bool
	replacements  []Replacement
	remoteDescs   []json.RawMessage
	candidates    []json.RawMessage
	calls         []string
	remoteApplied bool
	closed        bool

	onState     func(transport.ConnectionState)
	onCandidate func(json.RawMessage)
	onTrack     func(transport.RemoteTrack)

	// ReplaceErr, when set, is returned by every ReplaceSource call.
	ReplaceErr error
}

func (l *FakeLink) RemoteID() string { return l.remoteID }

func (l *FakeLink) record(call string) {
	l.calls = append(l.calls, call)
}

func (l *FakeLink) AttachLocalSource(kind transport.Kind, track transport.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("attach:" + kind.String())
	l.hasSender[kind] = true
	l.senders[kind] = track
	return nil
}

func (l *FakeLink) ReplaceSource(kind transport.Kind, track transport.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ReplaceErr != nil {
		return l.ReplaceErr
	}
	if !l.hasSender[kind] {
		return transport.ErrNoSenderForKind
	}
	l.record("replace:" + kind.String())
	l.senders[kind] = track
	l.replacements = append(l.replacements, Replacement{Kind: kind, Track: track})
	return nil
}

func (l *FakeLink) CreateOffer() (json.RawMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("offer")
	return json.RawMessage(fmt.Sprintf(`{"type":"offer","sdp":"offer-from-%s"}`, l.local)), nil
}

func (l *FakeLink) CreateAnswer() (json.RawMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.remoteApplied {
		return nil, ErrNoRemoteDescription
	}
	l.record("answer")
	return json.RawMessage(fmt.Sprintf(`{"type":"answer","sdp":"answer-from-%s"}`, l.local)), nil
}

func (l *FakeLink) ApplyRemoteDescription(payload json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("remote-description")
	l.remoteApplied = true
	l.remoteDescs = append(l.remoteDescs, payload)
	return nil
}

func (l *FakeLink) AddRemoteCandidate(payload json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.remoteApplied {
		return ErrNoRemoteDescription
	}
	l.record("candidate")
	l.candidates = append(l.candidates, payload)
	return nil
}

func (l *FakeLink) OnRemoteTrack(fn func(transport.RemoteTrack)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTrack = fn
}

func (l *FakeLink) OnConnectionStateChange(fn func(transport.ConnectionState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *FakeLink) OnLocalCandidate(fn func(json.RawMessage)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCandidate = fn
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("close")
	l.closed = true
	return nil
}

// SetState fires the connection state callback as the transport would.
func (l *FakeLink) SetState(s transport.ConnectionState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// EmitCandidate fires the local candidate callback.
func (l *FakeLink) EmitCandidate(payload string) {
	l.mu.Lock()
	fn := l.onCandidate
	l.mu.Unlock()
	if fn != nil {
		fn(json.RawMessage(payload))
	}
}

// EmitTrack fires the remote track callback.
func (l *FakeLink) EmitTrack(t transport.RemoteTrack) {
	l.mu.Lock()
	fn := l.onTrack
	l.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (l *FakeLink) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *FakeLink) Candidates() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.candidates))
	for _, c := range l.candidates {
		out = append(out, string(c))
	}
	return out
}

func (l *FakeLink) Replacements(kind transport.Kind) []transport.Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []transport.Track
	for _, r := range l.replacements {
		if r.Kind == kind {
			out = append(out, r.Track)
		}
	}
	return out
}

func (l *FakeLink) Sender(kind transport.Kind) transport.Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.senders[kind]
}

func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *FakeLink) RemoteApplied() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteApplied
}

// FakeTransport hands out FakeLinks and remembers every link it created.
type FakeTransport struct {
	mu      sync.Mutex
	localID string
	links   map[string][]*FakeLink

	// FailCreate makes CreateLink fail.
	FailCreate bool
}

func NewFakeTransport(localID string) *FakeTransport {
	return &FakeTransport{localID: localID, links: make(map[string][]*FakeLink)}
}

func (t *FakeTransport) CreateLink(remoteID string) (transport.Link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailCreate {
		return nil, errors.New("transport unavailable")
	}
	l := NewFakeLink(t.localID, remoteID)
	t.links[remoteID] = append(t.links[remoteID], l)
	return l, nil
}

// NewFakeLink builds a standalone link, for tests that do not go through a transport.
func NewFakeLink(localID, remoteID string) *FakeLink {
	return &FakeLink{
		remoteID:  remoteID,
		local:     localID,
		senders:   make(map[transport.Kind]transport.Track),
		hasSender: make(map[transport.Kind]bool),
	}
}

// Link returns the most recently created link to remoteID.
func (t *FakeTransport) Link(remoteID string) *FakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	ls := t.links[remoteID]
	if len(ls) == 0 {
		return nil
	}
	return ls[len(ls)-1]
}

// LinkCount returns how many links were ever created to remoteID.
func (t *FakeTransport) LinkCount(remoteID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.links[remoteID])
}
