package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brainmesh/brainmesh-go/pkg/store"
)

func newHotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hot",
		Short: "Manage hot records (goals, journal entries, tasks)",
		Long: `Manage the node's hot-tier records. Hot records are local working
state; use "hot externalize" to turn one into a synced memory file.`,
	}

	cmd.AddCommand(newHotListCommand())
	cmd.AddCommand(newHotAddCommand())
	cmd.AddCommand(newHotDoneCommand())
	cmd.AddCommand(newHotRemoveCommand())
	cmd.AddCommand(newHotExternalizeCommand())
	return cmd
}

func newHotListCommand() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hot records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureAuthenticated(cmd); err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout()
			defer cancel()

			records, err := client.ListHot(ctx, store.HotKind(kind))
			if err != nil {
				return fmt.Errorf("failed to list records: %w", err)
			}
			if len(records) == 0 {
				fmt.Println("No records.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTATUS\tTITLE")
			for _, r := range records {
				id := r.ID
				if len(id) > 8 {
					id = id[:8]
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, r.Kind, r.Status, r.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind: goal, journal, or task")
	return cmd
}

func newHotAddCommand() *cobra.Command {
	var kind, body string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a hot record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureAuthenticated(cmd); err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout()
			defer cancel()

			rec, err := client.CreateHot(ctx, store.HotKind(kind), args[0], body)
			if err != nil {
				return fmt.Errorf("failed to create record: %w", err)
			}
			fmt.Printf("Created %s %s: %s\n", rec.Kind, rec.ID, rec.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "task", "Record kind: goal, journal, or task")
	cmd.Flags().StringVar(&body, "body", "", "Record body text")
	return cmd
}

func newHotDoneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a hot record as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureAuthenticated(cmd); err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout()
			defer cancel()

			rec, err := client.UpdateHot(ctx, args[0], "", "", "done")
			if err != nil {
				return fmt.Errorf("failed to update record: %w", err)
			}
			fmt.Printf("Marked %s done: %s\n", rec.ID, rec.Title)
			return nil
		},
	}
}

func newHotRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a hot record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureAuthenticated(cmd); err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout()
			defer cancel()

			if err := client.DeleteHot(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newHotExternalizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "externalize <id>",
		Short: "Turn a hot record into a synced memory file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureAuthenticated(cmd); err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout()
			defer cancel()

			mf, err := client.Externalize(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to externalize record: %w", err)
			}
			fmt.Printf("Externalized to %s (%d bytes)\n", mf.Path, mf.Size)
			return nil
		},
	}
}
