package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"docchat/internal/app"
	"docchat/internal/docchat"
	"docchat/internal/ui"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Semantic search across your documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expand, _ := cmd.Flags().GetBool("expand")
		author, _ := cmd.Flags().GetString("author")
		title, _ := cmd.Flags().GetString("title")
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")

		return withApp(cmd, "search", func(ctx context.Context, a *app.DocChatApp) error {
			results, err := a.Search(ctx, docchat.SearchOptions{
				Query:  query,
				Author: author,
				Title:  title,
				Limit:  limit,
				Expand: expand,
			})
			if err != nil {
				return err
			}
			ui.SearchResults(os.Stdout, query, results)
			return nil
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Ask one question about your documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		save, _ := cmd.Flags().GetBool("save")
		chunks, _ := cmd.Flags().GetInt("chunks")
		question := strings.Join(args, " ")

		return withApp(cmd, "ask", func(ctx context.Context, a *app.DocChatApp) error {
			conv, err := a.NewConversation()
			if err != nil {
				return err
			}
			conv.SetContextChunks(chunks)

			reply, err := conv.Send(ctx, question)
			if err != nil {
				return err
			}

			md := markdown()
			fmt.Println(md.Render(reply.Content))
			if src := ui.Sources(reply.Sources); src != "" {
				fmt.Println()
				fmt.Println(src)
			}

			if save {
				id, err := conv.SaveToHistory(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("\nSaved to history: %s\n", id)
			}
			return nil
		})
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		chunks, _ := cmd.Flags().GetInt("chunks")

		return withApp(cmd, "chat", func(ctx context.Context, a *app.DocChatApp) error {
			conv, err := a.NewConversation()
			if err != nil {
				return err
			}
			conv.SetContextChunks(chunks)
			return ui.RunChat(ctx, conv, markdown())
		})
	},
}
