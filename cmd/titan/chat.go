package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"titan/internal/chat"
)

var (
	chatUserID     string
	chatPrivileged bool
)

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	replyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	actionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successBullet = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("+")
	failureBullet = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("x")
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message from the terminal",
	Long:  "With a message argument, sends it and prints the reply. Without one, starts an interactive session on a single conversation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		application, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer application.cleanup()

		if len(args) > 0 {
			_, err := sendOnce(ctx, application, "", strings.Join(args, " "))
			return err
		}
		return interactive(ctx, application)
	},
}

func sendOnce(ctx context.Context, application *app, conversationID, text string) (string, error) {
	result, err := application.service.Send(ctx, chat.SendRequest{
		ConversationID: conversationID,
		UserID:         chatUserID,
		Text:           text,
		Privileged:     chatPrivileged,
	})
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return conversationID, err
	}

	for _, a := range result.Actions {
		bullet := successBullet
		if !a.Success {
			bullet = failureBullet
		}
		fmt.Printf("  %s %s\n", bullet, actionStyle.Render(a.Summary))
	}
	fmt.Println(replyStyle.Render(result.Text))
	return result.ConversationID, nil
}

func interactive(ctx context.Context, application *app) error {
	fmt.Println(actionStyle.Render("Titan chat. Type a message, or /quit to exit."))
	scanner := bufio.NewScanner(os.Stdin)
	conversationID := ""

	for {
		fmt.Print(promptStyle.Render("you> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		// Errors are already printed; keep the session alive.
		if id, err := sendOnce(ctx, application, conversationID, line); err == nil {
			conversationID = id
		}
	}
}

func init() {
	chatCmd.Flags().StringVar(&chatUserID, "user", "local", "user id for the session")
	chatCmd.Flags().BoolVar(&chatPrivileged, "privileged", false, "run as a privileged caller")
	rootCmd.AddCommand(chatCmd)
}
