package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mossy-p/meshroom/internal/models"
)

var errQuit = errors.New("quit")

type commandKind int

const (
	cmdSubstitute commandKind = iota
	cmdScreen
	cmdFilter
	cmdMute
	cmdCamera
	cmdAdmin
	cmdMembers
	cmdLinks
	cmdStatus
	cmdHelp
	cmdQuit
)

// command is one parsed line of interactive input. Path is empty for "off".
type command struct {
	Kind   commandKind
	Path   string
	Admin  models.AdminCommandKind
	Target string
}

const helpText = `commands:
  sub <file.ivf> | sub off        substitute outgoing video
  screen <file.ivf> | screen off  share a screen recording
  filter <file.ogg> | filter off  replace outgoing voice
  mute                            toggle microphone
  camera                          toggle camera
  admin <kind> <participant-id>   toggle-mute, toggle-camera, remove-fake-cam, remove-voice-synth
  members | links | status
  quit`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errors.New("empty command")
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "sub", "substitute", "fake-cam":
		return sourceCommand(cmdSubstitute, name, args)
	case "screen":
		return sourceCommand(cmdScreen, name, args)
	case "filter", "voice":
		return sourceCommand(cmdFilter, name, args)
	case "mute":
		return command{Kind: cmdMute}, nil
	case "camera", "cam":
		return command{Kind: cmdCamera}, nil
	case "admin":
		if len(args) != 2 {
			return command{}, errors.New("usage: admin <kind> <participant-id>")
		}
		kind := models.AdminCommandKind(args[0])
		if !kind.Valid() {
			return command{}, fmt.Errorf("unknown admin command %q", args[0])
		}
		return command{Kind: cmdAdmin, Admin: kind, Target: args[1]}, nil
	case "members", "who":
		return command{Kind: cmdMembers}, nil
	case "links":
		return command{Kind: cmdLinks}, nil
	case "status":
		return command{Kind: cmdStatus}, nil
	case "help", "?":
		return command{Kind: cmdHelp}, nil
	case "quit", "exit", "q":
		return command{Kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q, try help", name)
	}
}

func sourceCommand(kind commandKind, name string, args []string) (command, error) {
	if len(args) != 1 {
		return command{}, fmt.Errorf("usage: %s <file> | %s off", name, name)
	}
	if strings.EqualFold(args[0], "off") {
		return command{Kind: kind}, nil
	}
	return command{Kind: kind, Path: args[0]}, nil
}
