package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newMemoriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "memories",
		Short: "List synced memory files",
		Long:  "List the node's synced memory files across the active and archive tiers",
		RunE:  runMemories,
	}
}

func runMemories(cmd *cobra.Command, args []string) error {
	if err := ensureAuthenticated(cmd); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	files, err := client.Memories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list memories: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No memories yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tTIER\tORIGIN\tAGE\tSIZE")
	for _, f := range files {
		origin := f.Origin
		if len(origin) > 8 {
			origin = origin[:8]
		}
		age := (time.Duration(f.AgeSec) * time.Second).Round(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", f.Path, f.Tier, origin, age, f.Size)
	}
	return w.Flush()
}
