package main

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akarpos/glossa/internal/config"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message and print the reply",
	Long: `Send a message and print the reply.

The message can be in any language the translator supports; the reply
comes back in the same language. Pass --session to continue an earlier
conversation, otherwise a new session is created and its id printed.

Examples:
  glossa chat "¿Cómo configuro el servidor?"
  glossa chat --session 4f1c... "Et en français?"
  glossa chat --lang de "Wie funktioniert das?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")
		lang, _ := cmd.Flags().GetString("lang")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"text": text}
		if sessionID != "" {
			req["session_id"] = sessionID
		}
		if lang != "" {
			req["language"] = lang
		}

		resp, err := client.post(cmd.Context(), "/v1/chat", req)
		if err != nil {
			return err
		}

		var result struct {
			SessionID    string  `json:"session_id"`
			Reply        string  `json:"reply"`
			Language     string  `json:"language"`
			ContextFound bool    `json:"context_found"`
			Score        float32 `json:"score"`
			Degraded     bool    `json:"degraded"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Reply)

		if result.Degraded {
			printWarning("reply is degraded, the server could not complete the turn")
		}
		if sessionID == "" {
			printStatus("Session", "%s", result.SessionID)
		}
		if result.ContextFound {
			printStatus("Context", "found (score %.2f)", result.Score)
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().String("session", "", "session id to continue")
	chatCmd.Flags().String("lang", "", "language hint (ISO 639-1), skips detection")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest content into the document index",
	Long: `Ingest content into the document index.

Examples:
  glossa ingest --text "The server listens on port 4600 by default"
  glossa ingest --url https://example.com/manual --title "Manual"
  glossa ingest --file ./notes.md
  glossa ingest --pdf ./handbook.pdf --title "Handbook"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		pageURL, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		pdfPath, _ := cmd.Flags().GetString("pdf")
		title, _ := cmd.Flags().GetString("title")

		if text == "" && pageURL == "" && file == "" && pdfPath == "" {
			return fmt.Errorf("one of --text, --url, --file, or --pdf is required")
		}

		req := map[string]any{
			"source": "cli",
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case pageURL != "":
			req["type"] = "url"
			req["url"] = pageURL
		case pdfPath != "":
			data, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("reading PDF: %w", err)
			}
			req["type"] = "pdf"
			req["content"] = base64.StdEncoding.EncodeToString(data)
			if title == "" {
				req["title"] = pdfPath
			}
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			req["type"] = "text"
			req["content"] = string(data)
			if title == "" {
				req["title"] = file
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/documents", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued doc %s", result["id"])
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest")
	ingestCmd.Flags().String("file", "", "text file path to ingest")
	ingestCmd.Flags().String("pdf", "", "PDF file path to ingest")
	ingestCmd.Flags().String("title", "", "title for the document")
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage indexed documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/documents?limit=%d", limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var docs []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			title := d.Title
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %-8s  %s\n",
				colorize(colorCyan, d.ID[:8]),
				d.Status,
				title,
			)
		}
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its index entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/documents/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted doc %s", args[0])
		return nil
	},
}

func init() {
	documentsListCmd.Flags().Int("limit", 50, "maximum number of documents to list")
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{}
		if lang != "" {
			body["language"] = lang
		}
		resp, err := client.post(cmd.Context(), "/v1/sessions", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result["session_id"])
		return nil
	},
}

var sessionsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the turns of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sessions/"+args[0]+"/history")
		if err != nil {
			return err
		}

		var turns []struct {
			Seq     int    `json:"seq"`
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := decodeJSON(resp, &turns); err != nil {
			return err
		}

		if len(turns) == 0 {
			fmt.Println("No turns in this session.")
			return nil
		}

		for _, t := range turns {
			role := t.Role
			if role == "user" {
				role = colorize(colorBold, role)
			}
			fmt.Printf("%3d  %-9s  %s\n", t.Seq, role, t.Content)
		}
		return nil
	},
}

func init() {
	sessionsNewCmd.Flags().String("lang", "", "preferred language for the session")
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsHistoryCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the document index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/search?q=%s", url.QueryEscape(query))
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var results []struct {
			ID       string  `json:"id"`
			SourceID string  `json:"source_id"`
			Text     string  `json:"text"`
			Score    float32 `json:"score"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score)
			text := r.Text
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			fmt.Printf("  %s\n", text)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
