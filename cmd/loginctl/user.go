package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/loginpopup/internal/database"
	"github.com/BradenHooton/loginpopup/internal/models"
	"github.com/BradenHooton/loginpopup/internal/repositories"
	pkgauth "github.com/BradenHooton/loginpopup/pkg/auth"
)

var (
	userEmail       string
	userDisplayName string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage directory users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user; the password is prompted for",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		password, err := promptPassword("Password for " + args[0])
		if err != nil {
			return err
		}

		db, err := database.NewConnection(&cfg.Database, newLogger())
		if err != nil {
			return err
		}
		defer db.Close()

		user := &models.User{
			Username:    args[0],
			Email:       userEmail,
			DisplayName: userDisplayName,
		}
		return addUser(cmd.Context(), cmd.OutOrStdout(), repositories.NewUserRepository(db), user, password)
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userAddCmd.Flags().StringVar(&userDisplayName, "display-name", "", "Display name")
	_ = userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}

type userCreator interface {
	Create(ctx context.Context, user *models.User) error
}

func addUser(ctx context.Context, w io.Writer, users userCreator, user *models.User, password string) error {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return err
	}

	hasher, err := pkgauth.NewHasher(pkgauth.DefaultCost)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash

	if err := users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Fprintf(w, "created user %s (%s)\n", user.Username, user.ID)
	return nil
}
