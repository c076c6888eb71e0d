package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/jobtrack/internal/jobs"
	"github.com/kalambet/jobtrack/internal/tracker"
	"github.com/kalambet/jobtrack/internal/views"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Jobs    *tracker.Store
	Version string
	Now     func() time.Time // defaults to time.Now
}

func (d MCPDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewMCPServer creates an MCP server with the job tools and the stats
// resource registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"jobtrack",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("jobtrack: the signed-in user's job applications. List, add, update status, delete and check follow-ups."),
		server.WithRecovery(),
	)

	statuses := make([]string, 0, len(jobs.Statuses()))
	for _, st := range jobs.Statuses() {
		statuses = append(statuses, string(st))
	}

	s.AddTool(
		mcp.NewTool("list_jobs",
			mcp.WithDescription("List job applications, filtered and sorted."),
			mcp.WithString("search", mcp.Description("Case-insensitive match on company, position, location or email")),
			mcp.WithString("status", mcp.Description("Status filter, or All"), mcp.Enum(append([]string{"All"}, statuses...)...)),
			mcp.WithString("sort", mcp.Description("dateApplied, companyName or positionTitle")),
			mcp.WithString("order", mcp.Description("asc or desc (default desc)")),
			mcp.WithBoolean("refresh", mcp.Description("Reload from the server first")),
		),
		mcpListJobs(deps),
	)

	s.AddTool(
		mcp.NewTool("add_job",
			mcp.WithDescription("Record a new job application."),
			mcp.WithString("company", mcp.Description("Company name"), mcp.Required()),
			mcp.WithString("position", mcp.Description("Position title"), mcp.Required()),
			mcp.WithString("date_applied", mcp.Description("YYYY-MM-DD, default today")),
			mcp.WithString("status", mcp.Description("Initial status, default Applied"), mcp.Enum(statuses...)),
			mcp.WithString("location", mcp.Description("Location")),
			mcp.WithString("email", mcp.Description("Email address used to apply")),
			mcp.WithString("source", mcp.Description("Where the posting was found")),
			mcp.WithString("follow_up", mcp.Description("Follow-up date, YYYY-MM-DD")),
			mcp.WithString("notes", mcp.Description("Free-form notes")),
		),
		mcpAddJob(deps),
	)

	s.AddTool(
		mcp.NewTool("update_status",
			mcp.WithDescription("Change the status of an existing application."),
			mcp.WithString("id", mcp.Description("Job id"), mcp.Required()),
			mcp.WithString("status", mcp.Description("New status"), mcp.Required(), mcp.Enum(statuses...)),
		),
		mcpUpdateStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_job",
			mcp.WithDescription("Delete an application."),
			mcp.WithString("id", mcp.Description("Job id"), mcp.Required()),
		),
		mcpDeleteJob(deps),
	)

	s.AddTool(
		mcp.NewTool("follow_ups",
			mcp.WithDescription("Applications with a follow-up due in the next 7 days, plus overdue ones."),
		),
		mcpFollowUps(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jobs://stats",
			"Application Stats",
			mcp.WithResourceDescription("Totals per status, applications this week and upcoming follow-ups"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpListJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if req.GetBool("refresh", false) {
			deps.Jobs.Load(ctx)
			if msg := deps.Jobs.Err(); msg != "" {
				return mcpError(msg), nil
			}
		}

		q := views.DefaultQuery()
		q.Search = req.GetString("search", "")
		var err error
		if q.Status, err = views.ParseStatusFilter(req.GetString("status", "")); err != nil {
			return mcpError(err.Error()), nil
		}
		if q.SortField, err = views.ParseSortField(req.GetString("sort", "")); err != nil {
			return mcpError(err.Error()), nil
		}
		if q.SortOrder, err = views.ParseSortOrder(req.GetString("order", "")); err != nil {
			return mcpError(err.Error()), nil
		}

		return mcpJSON(views.FilterAndSort(deps.Jobs.Jobs(), q))
	}
}

func mcpAddJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		company, err := req.RequireString("company")
		if err != nil {
			return mcpError("company is required"), nil
		}
		position, err := req.RequireString("position")
		if err != nil {
			return mcpError("position is required"), nil
		}

		f := jobs.FormData{
			CompanyName:   company,
			PositionTitle: position,
			Location:      req.GetString("location", ""),
			EmailUsed:     req.GetString("email", ""),
			Source:        req.GetString("source", ""),
			Notes:         req.GetString("notes", ""),
			Status:        jobs.StatusApplied,
			DateApplied:   jobs.DateOf(deps.now()),
		}
		if s := req.GetString("status", ""); s != "" {
			if f.Status, err = jobs.ParseStatus(s); err != nil {
				return mcpError(err.Error()), nil
			}
		}
		if s := req.GetString("date_applied", ""); s != "" {
			if f.DateApplied, err = jobs.ParseDate(s); err != nil {
				return mcpError(fmt.Sprintf("invalid date_applied: %v", err)), nil
			}
		}
		if s := req.GetString("follow_up", ""); s != "" {
			d, err := jobs.ParseDate(s)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid follow_up: %v", err)), nil
			}
			f.FollowUpDate = &d
		}

		j, err := deps.Jobs.Add(ctx, f)
		if err != nil {
			return mcpError(fmt.Sprintf("%s: %v", deps.Jobs.Err(), err)), nil
		}
		return mcpText(fmt.Sprintf("Added %s at %s (%s)", j.PositionTitle, j.CompanyName, j.ID)), nil
	}
}

func mcpUpdateStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		raw, err := req.RequireString("status")
		if err != nil {
			return mcpError("status is required"), nil
		}
		status, err := jobs.ParseStatus(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		cur, ok := deps.Jobs.Find(id)
		if !ok {
			return mcpError(fmt.Sprintf("job %s not found", id)), nil
		}
		f := cur.Form()
		f.Status = status

		j, err := deps.Jobs.Update(ctx, id, f)
		if err != nil {
			return mcpError(fmt.Sprintf("%s: %v", deps.Jobs.Err(), err)), nil
		}
		return mcpText(fmt.Sprintf("%s at %s is now %s", j.PositionTitle, j.CompanyName, j.Status)), nil
	}
}

func mcpDeleteJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if err := deps.Jobs.Delete(ctx, id); err != nil {
			return mcpError(fmt.Sprintf("%s: %v", deps.Jobs.Err(), err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted job %s", id)), nil
	}
}

type followUpItem struct {
	ID            string              `json:"id"`
	CompanyName   string              `json:"companyName"`
	PositionTitle string              `json:"positionTitle"`
	FollowUpDate  string              `json:"followUpDate"`
	State         views.FollowUpState `json:"state"`
}

func followUps(list []jobs.Job, now time.Time) []followUpItem {
	out := []followUpItem{}
	for _, j := range list {
		state := views.FollowUpStateOf(j.FollowUpDate, now)
		if state != views.FollowUpOverdue && state != views.FollowUpSoon {
			continue
		}
		out = append(out, followUpItem{
			ID:            j.ID,
			CompanyName:   j.CompanyName,
			PositionTitle: j.PositionTitle,
			FollowUpDate:  j.FollowUpDate.String(),
			State:         state,
		})
	}
	return out
}

func mcpFollowUps(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(followUps(deps.Jobs.Jobs(), deps.now()))
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(views.Summarize(deps.Jobs.Jobs(), deps.now()))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
			mcp.TextContent{Type: "text", Text: strings.TrimSpace(msg)},
		},
		IsError: true,
	}
}
