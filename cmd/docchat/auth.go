package main

import (
	"context"
	"fmt"
	"os"

	"docchat/internal/app"
	"docchat/internal/ui"

	"github.com/spf13/cobra"
)

// credentials reads the email flag, prompting for anything missing.
func credentials(cmd *cobra.Command, p *ui.Prompter, confirm bool) (string, string, error) {
	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		var err error
		if email, err = p.Line("Email: "); err != nil {
			return "", "", err
		}
	}

	password, err := p.Password("Password: ")
	if err != nil {
		return "", "", err
	}
	if confirm {
		again, err := p.Password("Confirm password: ")
		if err != nil {
			return "", "", err
		}
		if again != password {
			return "", "", fmt.Errorf("passwords do not match")
		}
	}
	return email, password, nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "login", func(ctx context.Context, a *app.DocChatApp) error {
			email, password, err := credentials(cmd, ui.NewPrompter(os.Stdout), false)
			if err != nil {
				return err
			}
			user, err := a.Login(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Signed in as %s\n", user.Email)
			return nil
		})
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "signup", func(ctx context.Context, a *app.DocChatApp) error {
			email, password, err := credentials(cmd, ui.NewPrompter(os.Stdout), true)
			if err != nil {
				return err
			}
			user, err := a.Signup(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Account created. Signed in as %s\n", user.Email)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "logout", func(ctx context.Context, a *app.DocChatApp) error {
			if a.CurrentUser() == nil {
				fmt.Println("Not signed in.")
				return nil
			}
			if err := a.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "whoami", func(ctx context.Context, a *app.DocChatApp) error {
			user := a.CurrentUser()
			if user == nil {
				fmt.Println("Not signed in.")
				return nil
			}
			fmt.Printf("%s (%s)\n", user.Email, user.ID)
			return nil
		})
	},
}
