package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bhhunter/rental-backend/internal/config"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/bhhunter/rental-backend/internal/services"
	"github.com/bhhunter/rental-backend/internal/utils"
	"github.com/bhhunter/rental-backend/pkg/jwt"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func secretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secrets",
		Short: "Generate a JWT signing secret and a webhook secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			jwtSecret, webhookSecret, err := utils.GenerateServerSecrets()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "# Add these to your .env file. Never commit them.")
			fmt.Fprintf(out, "JWT_SECRET=%s\n", jwtSecret)
			fmt.Fprintf(out, "PAYMONGO_WEBHOOK_SECRET=%s\n", webhookSecret)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID   int64
		role     string
		username string
		secret   string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for local testing",
		Long: `Issue an access token signed with JWT_SECRET (from the environment or .env),
or with --secret when given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			userRole := models.UserRole(strings.ToUpper(role))
			if !userRole.IsValid() {
				return fmt.Errorf("unknown role %q (expected TENANT, OWNER or ADMIN)", role)
			}

			_ = godotenv.Load()
			cfg := config.FromEnv()
			if secret == "" {
				secret = cfg.JWT.Secret
			}
			if secret == "" {
				return fmt.Errorf("no signing secret: set JWT_SECRET or pass --secret")
			}
			if ttl <= 0 {
				ttl = cfg.JWT.AccessTokenExpiry
			}

			service := jwt.NewService(secret, cfg.JWT.Issuer, ttl)
			token, err := service.GenerateAccessToken(userID, username, string(userRole))
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "User ID to embed in the token")
	cmd.Flags().StringVar(&role, "role", "", "Role: TENANT, OWNER or ADMIN")
	cmd.Flags().StringVar(&username, "username", "", "Username claim")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_ACCESS_TOKEN_EXPIRY)")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func signWebhookCmd() *cobra.Command {
	var (
		secret    string
		file      string
		timestamp int64
	)

	cmd := &cobra.Command{
		Use:   "sign-webhook",
		Short: "Print a Paymongo-Signature header value for a payload file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			body, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}
			if timestamp == 0 {
				timestamp = time.Now().Unix()
			}

			fmt.Fprintln(cmd.OutOrStdout(), services.SignatureHeader(secret, timestamp, body))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Webhook secret")
	cmd.Flags().StringVar(&file, "file", "", "Path to the raw JSON payload")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp to sign with (defaults to now)")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
