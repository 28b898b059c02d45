package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weave/jsonx"
)

var genkeyOut string

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate an Ed25519 producer key",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		if err := os.WriteFile(genkeyOut, []byte(hex.EncodeToString(priv)), 0600); err != nil {
			return err
		}
		out, err := jsonx.MarshalIndent(map[string]string{
			"pubkey":   hex.EncodeToString(pub),
			"key_path": genkeyOut,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
	genkeyCmd.Flags().StringVarP(&genkeyOut, "out", "o", "node.key", "File to write the hex private key to")
}
