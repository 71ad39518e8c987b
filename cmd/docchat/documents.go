package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"docchat/internal/api"
	"docchat/internal/app"
	"docchat/internal/docchat"
	"docchat/internal/ui"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload PATH...",
	Short: "Upload documents for indexing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetBool("folder")
		yes, _ := cmd.Flags().GetBool("yes")
		noProgress, _ := cmd.Flags().GetBool("no-progress")

		return withApp(cmd, "upload", func(ctx context.Context, a *app.DocChatApp) error {
			plan, err := a.PrepareUpload(ctx, args, folder)
			if err != nil {
				return err
			}
			ui.UploadPlan(os.Stdout, plan)

			skipExisting := true
			if len(plan.Existing) > 0 && !yes {
				replace, err := ui.NewPrompter(os.Stdout).Confirm("Upload them again?", false)
				if err != nil {
					a.CancelUpload()
					return err
				}
				skipExisting = !replace
			}

			upload := func(onStatus func(docchat.UploadItem)) (*docchat.UploadReport, error) {
				return a.Upload(ctx, plan, skipExisting, onStatus)
			}

			var report *docchat.UploadReport
			if stdoutIsTerminal() {
				var events <-chan api.ProgressEvent
				if !noProgress {
					stream, err := a.SubscribeProgress(ctx)
					if err != nil {
						fmt.Fprintln(os.Stderr, ui.Error(fmt.Errorf("progress unavailable: %w", err)))
					} else {
						defer stream.Close()
						events = stream.Events()
					}
				}
				report, err = ui.RunUpload(os.Stdout, plan, events, upload)
			} else {
				report, err = ui.PrintUpload(os.Stdout, upload)
			}

			if errors.Is(err, docchat.ErrAllFilesExist) {
				fmt.Println(err.Error())
				return nil
			}
			if report != nil {
				ui.UploadReport(os.Stdout, report)
			}
			return err
		})
	},
}

// docs command
var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage uploaded documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "docs-list", func(ctx context.Context, a *app.DocChatApp) error {
			docs, err := a.ListDocuments()
			if err != nil {
				return err
			}
			ui.Documents(os.Stdout, docs, time.Now())
			return nil
		})
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "docs-delete", func(ctx context.Context, a *app.DocChatApp) error {
			if err := a.DeleteDocument(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var docsActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "docs-activity", func(ctx context.Context, a *app.DocChatApp) error {
			activities, err := a.Activities()
			if err != nil {
				return err
			}
			ui.Activities(os.Stdout, activities, time.Now())
			return nil
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show account summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		recent, _ := cmd.Flags().GetInt("recent")

		return withApp(cmd, "profile", func(ctx context.Context, a *app.DocChatApp) error {
			user, summary, err := a.Profile(recent)
			if err != nil {
				return err
			}
			ui.Profile(os.Stdout, user, summary, time.Now())
			return nil
		})
	},
}
