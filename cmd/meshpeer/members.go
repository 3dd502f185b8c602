package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mossy-p/meshroom/internal/client"
	"github.com/mossy-p/meshroom/internal/models"
)

var membersCmd = &cobra.Command{
	Use:     "members",
	Aliases: []string{"ls"},
	Short:   "List who is in the room",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		info, err := client.FetchRoom(ctx, cfg)
		if err != nil {
			return err
		}
		renderRoom(os.Stdout, info)
		return nil
	},
}

func renderRoom(w io.Writer, info models.RoomInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Room %s", info.ID)
	t.AppendHeader(table.Row{"#", "Participant", "Identity", "Role", "Joined"})
	for i, m := range info.Members {
		t.AppendRow(table.Row{i + 1, m.ID, m.Identity, m.Role, m.JoinedAt.Format(time.TimeOnly)})
	}

	capacity := "unlimited"
	if info.MaxMembers > 0 {
		capacity = fmt.Sprint(info.MaxMembers)
	}
	footer := fmt.Sprintf("%d / %s", info.MemberCount, capacity)
	if info.PresenceCount >= 0 {
		footer += fmt.Sprintf(" (presence %d)", info.PresenceCount)
	}
	t.AppendFooter(table.Row{"", "", "", "Members", footer})
	t.Render()
}

func renderMembers(w io.Writer, self models.Participant, members []models.Participant) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Participant", "Identity", "Role", ""})
	for i, m := range members {
		you := ""
		if m.ID == self.ID {
			you = "you"
		}
		t.AppendRow(table.Row{i + 1, m.ID, m.Identity, m.Role, you})
	}
	t.Render()
}
