package consumer

import (
	"errors"
	"log/slog"
)

// CommandKind enumerates operator commands.
type CommandKind int

const (
	CmdReloadPrompt CommandKind = iota
	CmdToggleVerbose
	CmdClearConversation
	CmdSetStreamInfo
	CmdEnable
	CmdDisable
)

func (k CommandKind) String() string {
	switch k {
	case CmdReloadPrompt:
		return "reload_prompt"
	case CmdToggleVerbose:
		return "toggle_verbose"
	case CmdClearConversation:
		return "clear_conversation"
	case CmdSetStreamInfo:
		return "set_stream_info"
	case CmdEnable:
		return "enable"
	case CmdDisable:
		return "disable"
	}
	return "unknown"
}

// Command is an operator request executed on the consumer goroutine.
type Command struct {
	Kind  CommandKind
	Game  string // CmdSetStreamInfo
	Title string // CmdSetStreamInfo
}

// ErrControlBusy is returned when the control buffer is full.
var ErrControlBusy = errors.New("consumer: control queue full")

const controlBuffer = 32

// Control schedules cmds in order. It never blocks.
func (c *Consumer) Control(cmds ...Command) error {
	for _, cmd := range cmds {
		select {
		case c.controls <- cmd:
		default:
			return ErrControlBusy
		}
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Consumer) applyControls() {
	for {
		select {
		case cmd := <-c.controls:
			c.apply(cmd)
		default:
			return
		}
	}
}

func (c *Consumer) apply(cmd Command) {
	log := c.log.With(slog.String("command", cmd.Kind.String()))
	switch cmd.Kind {
	case CmdReloadPrompt:
		c.loadPrompt()
	case CmdToggleVerbose:
		c.verbose = !c.verbose
		log.Info("verbosity toggled", slog.Bool("verbose", c.verbose))
	case CmdClearConversation:
		c.conv.Clear()
		log.Info("conversation cleared")
	case CmdSetStreamInfo:
		c.game, c.title = cmd.Game, cmd.Title
		log.Info("stream info set", slog.String("title", cmd.Title), slog.String("game", cmd.Game))
	case CmdEnable:
		c.state.Cooldown = EnableCooldown
		c.enterRedeemed("operator")
	case CmdDisable:
		c.state.Cooldown = c.cfg.RedeemCooldown
		c.exitRedeemed("operator")
	default:
		log.Warn("unknown command")
	}
}
