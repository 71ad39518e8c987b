package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"docchat/internal/app"
	"docchat/internal/docchat"
	"docchat/internal/ui"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved chats",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "history-list", func(ctx context.Context, a *app.DocChatApp) error {
			sessions, err := a.ListSessions(ctx)
			if err != nil {
				return err
			}
			ui.Sessions(os.Stdout, sessions, time.Now())
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "history-show", func(ctx context.Context, a *app.DocChatApp) error {
			session, err := a.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(markdown().Render(docchat.RenderTranscript(session)))
			return nil
		})
	},
}

var historyRenameCmd = &cobra.Command{
	Use:   "rename ID TITLE",
	Short: "Rename a saved chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args[1:], " ")

		return withApp(cmd, "history-rename", func(ctx context.Context, a *app.DocChatApp) error {
			if err := a.RenameSession(ctx, args[0], title); err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %q\n", args[0], title)
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "history-delete", func(ctx context.Context, a *app.DocChatApp) error {
			if err := a.DeleteSession(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Export a saved chat to the transcript vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "history-export", func(ctx context.Context, a *app.DocChatApp) error {
			n, err := a.ExportSession(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Exported %s (%s)\n", args[0], humanize.Bytes(uint64(n)))
			return nil
		})
	},
}
