package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/luma/anidb/catalog"
)

var HashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Print the ed2k links of local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var errs error

		for _, path := range args {
			id, err := catalog.IdentityOf(path)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}

			fmt.Fprintln(cmd.OutOrStdout(), id.Link(filepath.Base(path)))
		}

		return errs
	},
}
