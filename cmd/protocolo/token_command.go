package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"protocolo-municipal/internal/app"
	"protocolo-municipal/internal/auth"
	"protocolo-municipal/internal/identity"

	"github.com/spf13/cobra"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		userID int64
		email  string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access/refresh token pair for a directory user",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if (userID == 0) == (email == "") {
				return errors.New("exactly one of --user or --email is required")
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				var (
					u   identity.User
					err error
				)
				if userID != 0 {
					u, err = a.Users.ByID(cmd.Context(), userID)
				} else {
					u, err = a.Users.ByEmail(cmd.Context(), email)
				}
				if err != nil {
					return fmt.Errorf("lookup user: %w", err)
				}
				if !u.Active {
					return fmt.Errorf("user %d is inactive", u.ID)
				}
				pair, err := a.Auth.IssuePair(time.Now(), auth.Subject{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]string{
						"access_token":  pair.AccessToken,
						"refresh_token": pair.RefreshToken,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User: %s <%s> (%s)\n", u.Name, u.Email, u.Role)
				fmt.Fprintf(out, "Access token: %s\n", pair.AccessToken)
				fmt.Fprintf(out, "Refresh token: %s\n", pair.RefreshToken)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User id")
	cmd.Flags().StringVar(&email, "email", "", "User e-mail")
	return cmd
}
