package main

import (
	"encoding/hex"
	"fmt"

	"github.com/advanderveer/at2/ledger"
	"github.com/spf13/cobra"
)

func init() {
	keyCmd.AddCommand(keyNewCmd)
	rootCmd.AddCommand(keyCmd)
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage account keys",
}

var keyNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new account key, the seed must be kept secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		idn := ledger.NewIdentity(nil)
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "seed: %s\npublic_key: %s\n", hex.EncodeToString(idn.Seed()), idn.PK().Hex())
		return err
	},
}
