package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/room"
)

// PresenceCounter reports the externally mirrored member count of a room.
type PresenceCounter interface {
	PeerCount(ctx context.Context, roomID string) (int64, error)
}

// GetRoom returns the member snapshot of the configured room (public)
func GetRoom(registry *room.Registry, roomID string, presence PresenceCounter, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("roomId") != roomID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}

		members := registry.Members(roomID)
		info := models.RoomInfo{
			ID:            roomID,
			Members:       members,
			MemberCount:   len(members),
			MaxMembers:    registry.Capacity(),
			PresenceCount: -1,
		}

		if presence != nil {
			n, err := presence.PeerCount(c.Request.Context(), roomID)
			if err != nil {
				log.Warn().Err(err).Str("room_id", roomID).Msg("failed to read presence count")
			} else {
				info.PresenceCount = n
			}
		}

		c.JSON(http.StatusOK, info)
	}
}
