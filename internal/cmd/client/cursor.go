package client

import (
	"fmt"
	"os"

	cfgpkg "github.com/rzbill/flagstream/internal/config"
	"github.com/rzbill/flagstream/internal/cursor"
	pebblestore "github.com/rzbill/flagstream/internal/storage/pebble"
	"github.com/spf13/cobra"
)

// NewCursorCommand constructs the `cursor` command group and subcommands.
func NewCursorCommand() *cobra.Command {
	cursorCmd := &cobra.Command{Use: "cursor", Short: "Inspect or reset persisted resume cursors"}
	cursorCmd.PersistentFlags().String("data-dir", dataDirFromEnv(), "Data directory (if not specified, uses OS-specific application data directory)")
	cursorCmd.AddCommand(newCursorShowCommand(), newCursorResetCommand())
	return cursorCmd
}

func newCursorShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print stored cursors as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			return withCursorStore(cmd, func(s *cursor.Store) error {
				out := newLineWriter(cmd.OutOrStdout())
				if key != "" {
					rec, ok, err := s.Load(key)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("no cursor for key %q", key)
					}
					return out.write(cursor.Entry{Key: key, Record: rec})
				}
				entries, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, e := range entries {
					if err := out.write(e); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().String("key", "", "Stream key (default: all keys)")
	return cmd
}

func newCursorResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete a stored cursor so the next session starts fresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			return withCursorStore(cmd, func(s *cursor.Store) error {
				if err := s.Delete(key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cursor %q reset\n", key)
				return nil
			})
		},
	}
	cmd.Flags().String("key", "default", "Stream key")
	return cmd
}

// withCursorStore opens the cursor store under --data-dir and ensures it is closed.
func withCursorStore(cmd *cobra.Command, fn func(*cursor.Store) error) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	dir := cfgpkg.CursorDir(dataDir)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("no cursor store at %s: %w", dir, err)
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(cursor.New(db))
}
