package main

import (
	"fmt"

	"github.com/openmined/vcscompare/internal/reposdk"
	"github.com/openmined/vcscompare/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), version.Detailed()); err != nil {
				return err
			}
			if serverURL == "" {
				return nil
			}

			sdk, err := reposdk.New(&reposdk.Config{BaseURL: serverURL})
			if err != nil {
				return err
			}
			defer sdk.Close()

			info, err := sdk.Info(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "server %s (api level %d, youngest r%d)\n", info.Version, info.APILevel, info.Youngest)
			return err
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "also print the version of this repository server")
	return cmd
}
