package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/facucarcelero/comandero/internal/backup"
)

func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore the full dataset",
	}
	cmd.AddCommand(newBackupExportCommand(rootOpts))
	cmd.AddCommand(newBackupImportCommand(rootOpts))
	return cmd
}

func newBackupExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write a checksummed backup file",
		Example: `  posctl --db comandero.db backup export --out backup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := operatorContext(cmd.Context())
			rt, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			// Write next to the target and rename so a failed export never
			// leaves a truncated file behind.
			tmp, err := os.CreateTemp(filepath.Dir(out), ".posctl-backup-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			manifest, err := rt.svc.ExportBackup(ctx, tmp)
			if closeErr := tmp.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fmt.Errorf("export backup: %w", err)
			}
			if err := os.Rename(tmp.Name(), out); err != nil {
				return err
			}
			return printManifest(cmd, rootOpts, "exported", out, manifest)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "backup file to write (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newBackupImportCommand(rootOpts *RootOptions) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the dataset with a backup file",
		Long: `Verify the backup's checksum and replace products, sessions, orders and
payments with its contents. Users and the audit log are kept.`,
		Example: `  posctl --db comandero.db backup import --in backup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := operatorContext(cmd.Context())
			rt, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			manifest, err := rt.svc.ImportBackup(ctx, f)
			if err != nil {
				return fmt.Errorf("import backup: %w", err)
			}
			return printManifest(cmd, rootOpts, "restored", in, manifest)
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "backup file to read (required)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func printManifest(cmd *cobra.Command, opts *RootOptions, verb string, path string, m backup.Manifest) error {
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), m)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n  products: %d\n  sessions: %d\n  orders:   %d\n  sha256:   %s\n",
		verb, path, m.ID, m.Products, m.Sessions, m.Orders, m.SHA256)
	return err
}
