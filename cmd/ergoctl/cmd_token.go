package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/auth"
)

var tokenFlags struct {
	user   string
	scopes []string
	ttl    time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with JWT_SECRET",
	RunE:  runToken,
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenFlags.user, "user", "", "Subject user id (required)")
	f.StringSliceVar(&tokenFlags.scopes, "scopes", auth.DefaultScopes, "Granted scopes")
	f.DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "Token lifetime")

	_ = tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, _ []string) error {
	token, err := auth.Issue(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, tokenFlags.user, tokenFlags.scopes, tokenFlags.ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
