package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/akarpos/glossa/internal/ingest"
	"github.com/akarpos/glossa/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Chat     ChatService
	Sessions SessionStore
	Search   DocSearcher
	Store    *storage.Store
}

// NewMCPServer creates an MCP server exposing the reply pipeline and
// the document index as tools for MCP clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"glossa",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("glossa answers questions from an indexed document collection, in the language the question was asked in."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask a question in any language and get a context-grounded reply in the same language. Pass session_id to continue a conversation."),
			mcp.WithString("text", mcp.Description("The question or message"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new one")),
			mcp.WithString("language", mcp.Description("ISO language code hint; omit to auto-detect")),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search the indexed documents and return matching chunks with scores."),
			mcp.WithString("query", mcp.Description("Search query in the index language"), mcp.Required()),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("add_document",
			mcp.WithDescription("Add a text document to the index. Indexing happens in the background."),
			mcp.WithString("content", mcp.Description("The document text"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Title for the document")),
		),
		mcpAddDocument(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		sessionID := req.GetString("session_id", "")
		language := req.GetString("language", "")

		if sessionID == "" {
			sessionID, err = deps.Sessions.CreateSession(ctx, language)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to create session: %v", err)), nil
			}
		}

		res, err := deps.Chat.HandleMessage(ctx, sessionID, language, text)
		if err != nil {
			// The turn failed but the session is intact. As with the HTTP
			// surface, the caller gets the fixed degraded text, not the
			// internal error.
			slog.Warn("chat turn failed", "session", sessionID, "error", err)
			return mcpText(fmt.Sprintf("[session %s] %s", sessionID, deps.Chat.DegradedReplyFor(ctx, res.UserLang))), nil
		}

		return mcpText(fmt.Sprintf("[session %s] %s", sessionID, res.Reply)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		hits, err := deps.Search.SearchAll(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(hits) == 0 {
			return mcpText("No matching chunks found."), nil
		}

		var sb strings.Builder
		for i, h := range hits {
			fmt.Fprintf(&sb, "%d. (score %.2f, source %s)\n%s\n\n", i+1, h.Score, h.SourceID, h.Text)
		}
		return mcpText(strings.TrimSpace(sb.String())), nil
	}
}

func mcpAddDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		title := req.GetString("title", "")

		doc := storage.Document{Title: title, Source: "mcp", Content: content}
		if err := ingest.QueueDocument(deps.Store, doc); err != nil {
			return mcpError(fmt.Sprintf("failed to queue document: %v", err)), nil
		}

		return mcpText("Document queued for indexing."), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
