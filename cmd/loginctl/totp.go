package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/loginpopup/internal/auth"
	"github.com/BradenHooton/loginpopup/internal/database"
	"github.com/BradenHooton/loginpopup/internal/repositories"
	"github.com/BradenHooton/loginpopup/internal/services"
)

var (
	qrOutput string
	qrSize   int
)

var totpCmd = &cobra.Command{
	Use:   "totp",
	Short: "Manage TOTP second factors",
}

var totpEnrollCmd = &cobra.Command{
	Use:   "enroll <username-or-email>",
	Short: "Enroll a user in TOTP and write the QR code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.TwoFactor.EncryptionKey == "" {
			return errors.New("TOTP_ENCRYPTION_KEY is not set")
		}
		key, err := hex.DecodeString(cfg.TwoFactor.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid TOTP_ENCRYPTION_KEY: %w", err)
		}
		totpManager, err := auth.NewTOTPManager(key, cfg.TwoFactor.Issuer)
		if err != nil {
			return err
		}

		logger := newLogger()
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		user, err := repositories.NewUserRepository(db).GetByLogin(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to find user %q: %w", args[0], err)
		}

		twoFactor := services.NewTwoFactorService(
			repositories.NewSecondFactorRepository(db),
			totpManager,
			nil,
			services.TwoFactorConfig{TokenTTL: cfg.TwoFactor.TokenTTL},
			logger,
		)
		enrollment, err := twoFactor.Enroll(cmd.Context(), user.ID, user.Email, qrSize)
		if err != nil {
			return err
		}

		if err := os.WriteFile(qrOutput, enrollment.QRCodePNG, 0o600); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "enrolled %s\n", user.Username)
		fmt.Fprintf(out, "otpauth URL: %s\n", enrollment.URL)
		fmt.Fprintf(out, "QR code written to %s\n", qrOutput)
		return nil
	},
}

func init() {
	totpEnrollCmd.Flags().StringVarP(&qrOutput, "output", "o", "totp-qr.png", "Path of the QR code PNG")
	totpEnrollCmd.Flags().IntVar(&qrSize, "size", 256, "QR code size in pixels")

	totpCmd.AddCommand(totpEnrollCmd)
	rootCmd.AddCommand(totpCmd)
}
