package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/strandapp/strand/cmd/chat_tui"
	"github.com/strandapp/strand/pkg/chat"
	"github.com/strandapp/strand/pkg/config"
	"github.com/strandapp/strand/pkg/livestore"
	"github.com/strandapp/strand/pkg/logging"
	"github.com/strandapp/strand/pkg/transport"
)

var (
	chatNoColor bool
	chatLast    bool
)

const prefsNamespace = "prefs"

func GetChatCommand() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat [room-id]",
		Short: "Open a conversation",
		Long: `Opens an interactive chat session. With a room id, resumes that room;
without one, starts a fresh room.

Example:
  strand chat            # start a new conversation
  strand chat room-42    # resume an existing one
  strand chat --last     # resume the most recently opened room`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "Disable colored output")
	chatCmd.Flags().BoolVar(&chatLast, "last", false, "Resume the most recently opened room")
	return chatCmd
}

func runChat(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("chat needs an interactive terminal")
	}
	if chatNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server == "" {
		return fmt.Errorf("no server configured; set server in %s or STRAND_SERVER", cfgPath)
	}

	// Stderr belongs to the TUI while it runs, so logs go to a file.
	log := logging.NewFileLogger("chat", filepath.Join(cfg.DataDir, "strand.log"))

	client, err := transport.NewHTTPClient(cfg.Server, cfg.Token, log.WithField("component", "transport"))
	if err != nil {
		return err
	}

	kv, err := livestore.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return fmt.Errorf("opening local state: %w", err)
	}
	defer kv.Close()

	recovery := chat.NewRecovery(kv, cfg.LivenessTTL, time.Now, log.WithField("component", "recovery"))
	session := chat.NewSession(client, recovery, cfg.Token, sessionSettings(cfg), log.WithField("component", "session"))
	go session.Run()
	defer session.Close()

	roomID := ""
	if len(args) == 1 {
		roomID = args[0]
	}
	if roomID == "" && chatLast {
		var last string
		if _, ok, _ := kv.Get(prefsNamespace, "last_room", &last); ok {
			roomID = last
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = session.Attach(ctx, roomID)
	cancel()
	if err != nil {
		return err
	}

	if id := session.Snapshot().Flags.RoomID; id != "" {
		if err := kv.Put(prefsNamespace, "last_room", id); err != nil {
			log.WithError(err).Warn("failed to remember last room")
		}
	}

	program := tea.NewProgram(chat_tui.New(session), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running chat UI: %w", err)
	}
	return nil
}

func sessionSettings(cfg *config.Config) chat.Settings {
	return chat.Settings{
		MinReveal:       cfg.Playback.MinDuration,
		MaxReveal:       cfg.Playback.MaxDuration,
		RevealTick:      cfg.Playback.Tick,
		AdvanceCooldown: cfg.AdvanceCooldown,
		FailSafeTimeout: cfg.FailSafeTimeout,
		LivenessTTL:     cfg.LivenessTTL,
		HistoryPageSize: cfg.HistoryPageSize,
	}
}
