package main

import (
	"errors"
	"fmt"

	"ecofin/internal/model"
	"ecofin/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var createAdminCmd = &cobra.Command{
	Use:     "create-admin",
	Short:   "Create the first admin account",
	Long:    `Creates an admin user unless one already exists. Replaces the unauthenticated bootstrap endpoint.`,
	Example: `  ecofin create-admin --email admin@ecofin.ro --username admin --password 'S3cure-pass'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			return errors.New("--email and --password are required")
		}
		if username == "" {
			username = "admin"
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		user, created, err := a.userService.EnsureAdmin(cmd.Context(), service.CreateUserRequest{
			Username: username,
			Email:    email,
			Password: password,
			Role:     model.RoleAdmin,
		})
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		if !created {
			a.log.Info("An admin account already exists, nothing to do")
			return nil
		}
		a.log.Info("Admin account created", zap.String("id", user.ID.String()), zap.String("email", user.Email))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().String("email", "", "Admin email")
	createAdminCmd.Flags().String("username", "admin", "Admin username")
	createAdminCmd.Flags().String("password", "", "Admin password (min 8 characters)")
}
