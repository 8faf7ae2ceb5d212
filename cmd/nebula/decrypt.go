package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/nebula-blue/aead"
	"github.com/user/nebula-blue/config"
)

func newDecryptCmd(cfg *config.Config) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "decrypt <sealed-file>",
		Short: "Open a captured nonce|ciphertext|tag payload with --key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, alg, err := cfg.AEAD()
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrInvalid, err)
			}
			sealed, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			plaintext, err := aead.NewFramer(nil, alg).Decrypt(key, sealed)
			if err != nil {
				return err
			}
			defer aead.Wipe(plaintext)

			if out == "" {
				_, err = cmd.OutOrStdout().Write(plaintext)
				return err
			}
			return os.WriteFile(out, plaintext, 0o600)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the plaintext here instead of stdout")
	return cmd
}
