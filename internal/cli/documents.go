package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	getJSON     bool
	deleteAll   bool
	dropConfirm bool
)

var getCmd = &cobra.Command{
	Use:   "get <id>...",
	Short: "Fetch documents by id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]...",
	Short: "Delete documents by id, or all documents with --all",
	RunE:  runDelete,
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the table or collection with all its documents",
	RunE:  runDrop,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every document")

	rootCmd.AddCommand(dropCmd)
	dropCmd.Flags().BoolVar(&dropConfirm, "yes", false, "confirm dropping the store")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cfg, appLogger, false)
	if err != nil {
		return err
	}
	defer s.Close()

	docs, err := s.store.GetByIDs(ctx, args)
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}

	if getJSON {
		return writeJSON(cmd.OutOrStdout(), toRows(docs))
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents found.")
		return nil
	}
	writeRows(cmd.OutOrStdout(), toRows(docs), false)
	return nil
}

// deleteArgs checks that exactly one of ids and --all is given.
func deleteArgs(ids []string, all bool) error {
	switch {
	case all && len(ids) > 0:
		return fmt.Errorf("--all cannot be combined with ids")
	case !all && len(ids) == 0:
		return fmt.Errorf("give at least one id or --all")
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := deleteArgs(args, deleteAll); err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, cfg, appLogger, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if deleteAll {
		n, err := s.store.DeleteAll(ctx)
		if err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d documents\n", n)
		return nil
	}

	removed, err := s.store.Delete(ctx, args)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if !removed {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching documents")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Documents deleted")
	return nil
}

func runDrop(cmd *cobra.Command, args []string) error {
	if !dropConfirm {
		return fmt.Errorf("drop removes every document; pass --yes to confirm")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, cfg, appLogger, false)
	if err != nil {
		return err
	}
	defer s.Close()

	resource := s.store.Backend().Info().Resource
	if err := s.store.Drop(ctx); err != nil {
		return fmt.Errorf("drop failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s\n", resource)
	return nil
}
