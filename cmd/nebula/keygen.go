package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/nebula-blue/aead"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a random 128-bit key as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := aead.NewKey(nil)
			if err != nil {
				return err
			}
			defer aead.Wipe(key[:])
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key[:]))
			return nil
		},
	}
}
