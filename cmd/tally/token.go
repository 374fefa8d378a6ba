package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alecgard/tally/internal/identity"
)

var tokenCmd = &cobra.Command{
	Use:   "token [plaintext]",
	Short: "Hash an identity token for the static_tokens config section",
	Long:  "Prints the bcrypt hash of a bearer token for use in identity.static_tokens. With no argument, a fresh random token is generated and printed alongside its hash.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	plaintext := ""
	if len(args) == 1 {
		plaintext = args[0]
	} else {
		plaintext = uuid.NewString()
	}

	hash, err := identity.HashToken(plaintext)
	if err != nil {
		return err
	}

	fmt.Printf("Token: %s\n", plaintext)
	fmt.Printf("Hash:  %s\n", hash)
	return nil
}
