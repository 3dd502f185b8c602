package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/peer"
	"github.com/mossy-p/meshroom/internal/transport"
	"github.com/mossy-p/meshroom/internal/transport/transporttest"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line string
		want command
	}{
		{"sub clip.ivf", command{Kind: cmdSubstitute, Path: "clip.ivf"}},
		{"sub OFF", command{Kind: cmdSubstitute}},
		{"screen desk.ivf", command{Kind: cmdScreen, Path: "desk.ivf"}},
		{"filter off", command{Kind: cmdFilter}},
		{"voice robot.ogg", command{Kind: cmdFilter, Path: "robot.ogg"}},
		{"  mute ", command{Kind: cmdMute}},
		{"camera", command{Kind: cmdCamera}},
		{"admin toggle-mute abc", command{Kind: cmdAdmin, Admin: models.AdminToggleMute, Target: "abc"}},
		{"admin remove-fake-cam abc", command{Kind: cmdAdmin, Admin: models.AdminClearSubstitute, Target: "abc"}},
		{"who", command{Kind: cmdMembers}},
		{"links", command{Kind: cmdLinks}},
		{"status", command{Kind: cmdStatus}},
		{"Q", command{Kind: cmdQuit}},
	}
	for _, tc := range cases {
		got, err := parseCommand(tc.line)
		require.NoError(t, err, tc.line)
		require.Equal(t, tc.want, got, tc.line)
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"sub",
		"sub a b",
		"admin toggle-mute",
		"admin reboot abc",
		"dance",
	} {
		_, err := parseCommand(line)
		require.Error(t, err, line)
	}
}

func TestRenderRoom(t *testing.T) {
	var buf bytes.Buffer
	renderRoom(&buf, models.RoomInfo{
		ID: "main-room",
		Members: []models.Participant{
			{ID: "p1", Identity: "owner@example.com", Role: models.RolePrivileged, JoinedAt: time.Now()},
			{ID: "p2", Identity: "user@example.com", Role: models.RoleStandard, JoinedAt: time.Now()},
		},
		MemberCount:   2,
		MaxMembers:    0,
		PresenceCount: -1,
	})

	// go-pretty upper-cases headers and footers
	out := strings.ToLower(buf.String())
	require.Contains(t, out, "main-room")
	require.Contains(t, out, "owner@example.com")
	require.Contains(t, out, "2 / unlimited")
	require.NotContains(t, out, "presence")
}

func TestRenderLinks(t *testing.T) {
	var buf bytes.Buffer
	renderLinks(&buf, []peer.LinkInfo{{RemoteID: "p2", State: peer.StateConnected, Role: peer.RoleInitiator}})
	require.Contains(t, buf.String(), "connected")
	require.Contains(t, buf.String(), "initiator")
}

func TestHandoffAppliesInTime(t *testing.T) {
	src := transporttest.NewFakeSource(transport.KindVideo, "clip")
	runNow := func(_ context.Context, fn func() error) error { return fn() }

	applied := false
	err := handoff(context.Background(), runNow, src, func() error {
		applied = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.Zero(t, src.Stops())
}

func TestHandoffStopsRejectedSource(t *testing.T) {
	src := transporttest.NewFakeSource(transport.KindAudio, "clip")
	runNow := func(_ context.Context, fn func() error) error { return fn() }

	wrongKind := errors.New("wrong kind")
	err := handoff(context.Background(), runNow, src, func() error { return wrongKind })
	require.ErrorIs(t, err, wrongKind)
	require.Equal(t, 1, src.Stops())
}

func TestHandoffAfterTimeoutNeverActivates(t *testing.T) {
	src := transporttest.NewFakeSource(transport.KindVideo, "clip")

	// the session queues the closure but the caller stops waiting
	var queued func() error
	timedOut := func(_ context.Context, fn func() error) error {
		queued = fn
		return context.DeadlineExceeded
	}

	applied := false
	err := handoff(context.Background(), timedOut, src, func() error {
		applied = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, src.Stops())

	require.NoError(t, queued())
	require.False(t, applied)
	require.Equal(t, 1, src.Stops())
}
