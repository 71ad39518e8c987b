package main

import (
	"context"
	"fmt"
	"os"

	"docchat/internal/app"
	"docchat/internal/ui"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "status", func(ctx context.Context, a *app.DocChatApp) error {
			status, err := a.Status(ctx)
			if err != nil {
				return err
			}
			ui.Status(os.Stdout, status)
			return nil
		})
	},
}

// models command
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage backend models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available models",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "models-list", func(ctx context.Context, a *app.DocChatApp) error {
			catalog, err := a.Models(ctx)
			if err != nil {
				return err
			}
			current := ""
			if status, err := a.Status(ctx); err == nil {
				current = status.EmbeddingModel
			}
			ui.Models(os.Stdout, catalog, current)
			return nil
		})
	},
}

var modelsSetEmbeddingCmd = &cobra.Command{
	Use:   "set-embedding NAME",
	Short: "Switch the embedding model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "models-set-embedding", func(ctx context.Context, a *app.DocChatApp) error {
			if err := a.SetEmbeddingModel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Embedding model set to %s\n", args[0])
			return nil
		})
	},
}

var modelsSetInferenceCmd = &cobra.Command{
	Use:   "set-inference NAME",
	Short: "Switch the inference model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "models-set-inference", func(ctx context.Context, a *app.DocChatApp) error {
			if err := a.SetInferenceModel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Inference model set to %s\n", args[0])
			return nil
		})
	},
}
