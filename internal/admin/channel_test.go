package admin

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/room"
)

type recordingRelay struct {
	sent []models.SignalMessage
	err  error
}

func (r *recordingRelay) Relay(msg models.SignalMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type nopConn struct{}

func (nopConn) Send(models.SignalMessage) error { return nil }

func setup(t *testing.T) (*room.Registry, *recordingRelay, *Channel) {
	t.Helper()
	reg := room.NewRegistry(0)
	for _, p := range []models.Participant{
		{ID: "owner", Identity: "ownerhuss@huss.com", Role: models.RolePrivileged, RoomID: "r"},
		{ID: "u1", Identity: "user01@huss.com", Role: models.RoleStandard, RoomID: "r"},
		{ID: "u2", Identity: "user02@huss.com", Role: models.RoleStandard, RoomID: "r"},
		{ID: "elsewhere", Identity: "user03@huss.com", Role: models.RoleStandard, RoomID: "other"},
	} {
		_, err := reg.Join(room.Session{Participant: p, Conn: nopConn{}})
		require.NoError(t, err)
	}
	relay := &recordingRelay{}
	return reg, relay, NewChannel(reg, relay, zerolog.Nop())
}

func TestIssueAccepted(t *testing.T) {
	_, relay, ch := setup(t)

	err := ch.Issue(models.AdminCommand{Kind: models.AdminToggleMute, TargetID: "u1", IssuerID: "owner"})
	require.NoError(t, err)
	require.Len(t, relay.sent, 1)

	msg := relay.sent[0]
	require.Equal(t, models.SignalTypeReceiveAdminCommand, msg.Type)
	require.Equal(t, "owner", msg.From)
	require.Equal(t, "u1", msg.To)

	var cmd models.AdminCommand
	require.NoError(t, msg.DecodePayload(&cmd))
	require.Equal(t, models.AdminToggleMute, cmd.Kind)
}

func TestIssueRejectsNonPrivileged(t *testing.T) {
	_, relay, ch := setup(t)

	for _, kind := range []models.AdminCommandKind{
		models.AdminToggleMute, models.AdminToggleCamera, models.AdminClearSubstitute, models.AdminClearVoiceFilter,
	} {
		err := ch.Issue(models.AdminCommand{Kind: kind, TargetID: "u2", IssuerID: "u1"})
		require.ErrorIs(t, err, ErrNotPrivileged)
	}

	err := ch.Issue(models.AdminCommand{Kind: models.AdminToggleMute, TargetID: "u2", IssuerID: "not-joined"})
	require.ErrorIs(t, err, ErrNotPrivileged)
	require.Empty(t, relay.sent)
}

func TestIssueRejectsUnknownTarget(t *testing.T) {
	_, relay, ch := setup(t)

	err := ch.Issue(models.AdminCommand{Kind: models.AdminToggleCamera, TargetID: "ghost", IssuerID: "owner"})
	require.ErrorIs(t, err, ErrUnknownTarget)

	err = ch.Issue(models.AdminCommand{Kind: models.AdminToggleCamera, TargetID: "elsewhere", IssuerID: "owner"})
	require.ErrorIs(t, err, ErrUnknownTarget)
	require.Empty(t, relay.sent)
}

func TestIssueRejectsUnknownKind(t *testing.T) {
	_, relay, ch := setup(t)

	err := ch.Issue(models.AdminCommand{Kind: "kick", TargetID: "u1", IssuerID: "owner"})
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.Empty(t, relay.sent)
}

func TestIssueRelayFailureSharesDropPolicy(t *testing.T) {
	_, relay, ch := setup(t)
	dropped := errors.New("dropped")
	relay.err = dropped

	err := ch.Issue(models.AdminCommand{Kind: models.AdminToggleMute, TargetID: "u1", IssuerID: "owner"})
	require.ErrorIs(t, err, ErrUnknownTarget)
	require.ErrorIs(t, err, dropped)
}
