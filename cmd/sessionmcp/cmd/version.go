package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sessionmcp/sessionmcp/pkg/version"
)

var versionJSON bool

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(c *cobra.Command, _ []string) error {
			if versionJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version.GetInfo())
			}
			fmt.Fprintln(c.OutOrStdout(), version.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&versionJSON, "json", false, "Print version information as JSON")
	return cmd
}
