package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/danmuck/wirelink/internal/protocol/secure"
	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a random pre-shared key as hex for key_hex",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, secure.KeySize)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
			return nil
		},
	}
}
