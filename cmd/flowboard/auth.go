package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func credentialFlags(cmd *cobra.Command, email, password *string) {
	cmd.Flags().StringVar(email, "email", "", "account email")
	cmd.Flags().StringVar(password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.authenticate(cmd.Context(), email, func(ctx context.Context) (string, error) {
				return a.client.Login(ctx, email, password)
			})
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.authenticate(cmd.Context(), email, func(ctx context.Context) (string, error) {
				return a.client.Register(ctx, email, password)
			})
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func (a *app) authenticate(ctx context.Context, email string, fn func(context.Context) (string, error)) error {
	tok, err := fn(ctx)
	if err != nil {
		return err
	}
	if tok == "" {
		return errors.New("server returned an empty token")
	}
	if err := a.tokens.Save(tok); err != nil {
		return err
	}
	a.client.SetToken(tok)
	fmt.Fprintf(a.stdout, "Logged in as %s\n", email)
	return nil
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.tokens.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Logged out")
			return nil
		},
	}
}
