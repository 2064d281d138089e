package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for the anidb command",
	Long:  `Generate documentation for the anidb command`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
