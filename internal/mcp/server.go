// Package mcp exposes the task list and the reconciler as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetr/doit/internal/reconcile"
	"github.com/spetr/doit/internal/tasks"
	"github.com/spetr/doit/pkg/types"
)

// Server implements the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	engine    *reconcile.Engine
	store     *tasks.Store
	project   string
}

// Config contains server configuration.
type Config struct {
	Engine  *reconcile.Engine
	Project string // assigned to tasks added through task_add
	Version string
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("mcp: engine is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		engine:  cfg.Engine,
		store:   cfg.Engine.Store(),
		project: cfg.Project,
	}

	mcpServer := server.NewMCPServer(
		"doit",
		cfg.Version,
		server.WithLogging(),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

// registerTools registers all MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List tasks, newest first"),
		mcp.WithString("view", mcp.Description("pending (default), completed or all")),
		mcp.WithBoolean("all_projects", mcp.Description("Include tasks of every project")),
		mcp.WithString("tag", mcp.Description("Only tasks from annotations with this tag (TODO, FIXME, HACK, NOTE, BUG)")),
	), s.handleTaskList)

	mcpServer.AddTool(mcp.NewTool("task_add",
		mcp.WithDescription("Add a manual task"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Task text")),
	), s.handleTaskAdd)

	mcpServer.AddTool(mcp.NewTool("task_edit",
		mcp.WithDescription("Change the text of a task"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New text")),
	), s.handleTaskEdit)

	mcpServer.AddTool(mcp.NewTool("task_delete",
		mcp.WithDescription("Delete a task"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task ID")),
	), s.handleTaskDelete)

	mcpServer.AddTool(mcp.NewTool("task_toggle",
		mcp.WithDescription("Flip a task between pending and completed"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task ID")),
	), s.handleTaskToggle)

	mcpServer.AddTool(mcp.NewTool("task_revive",
		mcp.WithDescription("Reopen a completed task; a task whose annotation was removed stays untracked"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task ID")),
	), s.handleTaskRevive)

	mcpServer.AddTool(mcp.NewTool("task_scan",
		mcp.WithDescription("Scan one file or the whole workspace for annotations"),
		mcp.WithString("path", mcp.Description("Workspace-relative file path (default: whole workspace)")),
		mcp.WithBoolean("rescan", mcp.Description("Forget seen annotations and rescan everything")),
	), s.handleTaskScan)

	mcpServer.AddTool(mcp.NewTool("task_validate",
		mcp.WithDescription("Re-check tracked tasks against their files now"),
	), s.handleTaskValidate)

	mcpServer.AddTool(mcp.NewTool("task_stats",
		mcp.WithDescription("Get task list statistics"),
		mcp.WithBoolean("all_projects", mcp.Description("Count tasks of every project")),
	), s.handleTaskStats)
}

// Listen serves MCP over the given streams until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

func (s *Server) scope(req mcp.CallToolRequest) string {
	if req.GetBool("all_projects", false) {
		return ""
	}
	return s.project
}

func (s *Server) handleTaskList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preds := []tasks.Predicate{tasks.InProject(s.scope(req))}

	switch view := req.GetString("view", "pending"); view {
	case "pending":
		preds = append(preds, tasks.IsPending)
	case "completed":
		preds = append(preds, tasks.IsCompleted)
	case "all":
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown view %q (pending, completed, all)", view)), nil
	}

	if name := req.GetString("tag", ""); name != "" {
		tag, ok := types.ParseTag(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown tag %q (valid: %v)", name, types.AllTags)), nil
		}
		preds = append(preds, tasks.HasTag(tag))
	}

	list := tasks.Filter(s.store.All(), preds...)

	formatted := make([]map[string]any, 0, len(list))
	for _, t := range list {
		formatted = append(formatted, formatTask(t))
	}

	return jsonResult(map[string]any{
		"count": len(formatted),
		"tasks": formatted,
	})
}

func (s *Server) handleTaskAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	t, err := s.store.Add(text, s.project)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add task: %v", err)), nil
	}
	return jsonResult(formatTask(t))
}

func (s *Server) handleTaskEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	text := req.GetString("text", "")
	if id == "" || text == "" {
		return mcp.NewToolResultError("id and text are required"), nil
	}

	t, err := s.store.Edit(id, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to edit task: %v", err)), nil
	}
	return jsonResult(formatTask(t))
}

func (s *Server) handleTaskDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	if err := s.store.Delete(id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}
	return jsonResult(map[string]any{"success": true, "id": id})
}

func (s *Server) handleTaskToggle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	t, err := s.store.Toggle(id)
	if errors.Is(err, types.ErrTaskRemoved) {
		return mcp.NewToolResultError("the annotation of this task was removed from its file; use task_revive to reopen it"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle task: %v", err)), nil
	}
	return jsonResult(formatTask(t))
}

func (s *Server) handleTaskRevive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	t, err := s.store.Revive(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to revive task: %v", err)), nil
	}
	return jsonResult(formatTask(t))
}

func (s *Server) handleTaskScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	rescan := req.GetBool("rescan", false)

	slog.Info("scan requested", "path", path, "rescan", rescan)

	var (
		r   types.Report
		err error
	)
	switch {
	case path != "":
		r, err = s.engine.ScanFile(ctx, path)
	case rescan:
		r, err = s.engine.Rescan(ctx)
	default:
		r, err = s.engine.ScanWorkspace(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	return jsonResult(formatReport(r))
}

func (s *Server) handleTaskValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r := s.engine.Validate(ctx)
	return jsonResult(formatReport(r))
}

func (s *Server) handleTaskStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.store.Stats(s.scope(req)))
}

func formatTask(t types.Task) map[string]any {
	entry := map[string]any{
		"id":         t.ID,
		"text":       t.Text,
		"completed":  t.Completed,
		"created_at": t.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if t.Project != "" {
		entry["project"] = t.Project
	}
	if o := t.Origin; o != nil {
		entry["file"] = o.FilePath
		entry["line"] = o.Line + 1
		entry["tag"] = o.Tag
		entry["status"] = o.Status
	}
	return entry
}

func formatReport(r types.Report) map[string]any {
	result := map[string]any{
		"files":     r.Files,
		"added":     r.Added,
		"updated":   r.Updated,
		"completed": r.Completed,
		"deleted":   r.Deleted,
	}
	if r.Skipped {
		result["skipped"] = true
	}
	return result
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
