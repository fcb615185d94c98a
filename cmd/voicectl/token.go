package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mustafaciftc/sesli-sohbet/internal/auth"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token USERNAME",
	Short: "Sign a development token with the server's shared secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		id, _ := cmd.Flags().GetString("user-id")
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := domain.NewUser(id, args[0]); err != nil {
			return err
		}
		tok, err := auth.SignToken(secret, auth.Claims{Sub: id, Name: args[0], Exp: time.Now().Add(ttl).Unix()})
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("secret", "dev-token-secret", "HMAC secret shared with the server")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().String("user-id", "", "user id (random when empty)")
}
