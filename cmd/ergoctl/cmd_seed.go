package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/persistence/postgres"
)

var seedFlags struct {
	house   string
	houseID string
	users   []string
	balance int
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a house and add members to it",
	Example: "  ergoctl seed --house \"Flat 4B\" --user linh --user an\n" +
		"  ergoctl seed --house-id 7f1c... --user minh --balance 600",
	RunE: runSeed,
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedFlags.house, "house", "", "Name of a new house to create")
	f.StringVar(&seedFlags.houseID, "house-id", "", "Existing house to add members to")
	f.StringSliceVar(&seedFlags.users, "user", nil, "Member user id (repeatable)")
	f.IntVar(&seedFlags.balance, "balance", 0, "Starting wallet balance for new members")

	seedCmd.MarkFlagsMutuallyExclusive("house", "house-id")
	seedCmd.MarkFlagsOneRequired("house", "house-id")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if seedFlags.balance < 0 {
		return fmt.Errorf("--balance must not be negative")
	}

	pool, err := pgxpool.New(cmd.Context(), cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	houseID := seedFlags.houseID
	if houseID == "" {
		houseID, err = repo.CreateHouse(cmd.Context(), seedFlags.house)
		if err != nil {
			return fmt.Errorf("create house: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "house %s\n", houseID)
	for _, userID := range seedFlags.users {
		err := repo.UpsertUser(cmd.Context(), domain.UserState{
			UserID:        userID,
			DisplayName:   userID,
			HouseID:       houseID,
			WalletBalance: seedFlags.balance,
		})
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", userID, err)
		}
		fmt.Fprintf(out, "member %s\n", userID)
	}
	return nil
}
