package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/strandapp/strand/pkg/logging"
	"github.com/strandapp/strand/pkg/transport"
)

func GetRoomsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List your conversations",
		RunE:  runRooms,
	}
}

func runRooms(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server == "" {
		return fmt.Errorf("no server configured; set server in %s or STRAND_SERVER", cfgPath)
	}

	client, err := transport.NewHTTPClient(cfg.Server, cfg.Token, logging.NewLogger("transport"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	rooms, err := client.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("listing rooms: %w", err)
	}

	if len(rooms) == 0 {
		fmt.Println("No conversations yet. Start one with: strand chat")
		return nil
	}

	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	branch := color.New(color.FgGreen).SprintFunc()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", bold("ID"), bold("TITLE"), bold("MODE"), bold("TURNS"))
	for _, r := range rooms {
		mode := r.Mode
		if mode == "branch" {
			mode = branch(mode)
		}
		turns := fmt.Sprintf("%d", r.TurnCount)
		if r.MaxTurns != nil {
			turns = fmt.Sprintf("%d/%d", r.TurnCount, *r.MaxTurns)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Title, mode, dim(turns))
	}
	return w.Flush()
}
