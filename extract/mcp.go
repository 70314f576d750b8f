package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the triage tools on an MCP server.
func (o *Orchestrator) RegisterMCP(srv *mcp.Server) {
	o.registerClassifyTool(srv)
	o.registerExtractTool(srv)
	o.registerStatusTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var res mcp.CallToolResult
		res.SetError(fmt.Errorf("marshal: %w", err))
		return &res, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func errResult(err error) (*mcp.CallToolResult, error) {
	var res mcp.CallToolResult
	res.SetError(errors.New(err.Error()))
	return &res, nil
}

// --- classify ---

type classifyReq struct {
	Path string `json:"path"`
}

func (o *Orchestrator) registerClassifyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "workpack_classify",
		Description: "Classify every page of a work-order PDF into drawings, maps, photos and forms without rasterizing anything.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF file path to classify"},
		}, []string{"path"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r classifyReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return errResult(fmt.Errorf("invalid arguments: %w", err))
		}
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return errResult(err)
		}
		result, err := o.Classify(data)
		if err != nil {
			return errResult(err)
		}
		return textResult(result)
	})
}

// --- extract ---

type extractMCPReq struct {
	JobID int64 `json:"job_id"`
}

func (o *Orchestrator) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "workpack_extract",
		Description: "Trigger asset extraction for a job's uploaded PDF. Returns immediately; results land on the job record.",
		InputSchema: inputSchema(map[string]any{
			"job_id": map[string]any{"type": "integer", "description": "Job id to extract"},
		}, []string{"job_id"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r extractMCPReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return errResult(fmt.Errorf("invalid arguments: %w", err))
		}
		if err := o.Start(ctx, r.JobID); err != nil {
			return errResult(err)
		}
		return textResult(map[string]any{"job_id": r.JobID, "status": "started"})
	})
}

// --- status ---

type statusReq struct {
	JobID int64 `json:"job_id"`
}

func (o *Orchestrator) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "workpack_status",
		Description: "Fetch a job record with its extraction state and asset list.",
		InputSchema: inputSchema(map[string]any{
			"job_id": map[string]any{"type": "integer", "description": "Job id to fetch"},
		}, []string{"job_id"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r statusReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return errResult(fmt.Errorf("invalid arguments: %w", err))
		}
		job, err := o.jobs.Get(ctx, r.JobID)
		if err != nil {
			return errResult(err)
		}
		return textResult(job)
	})
}
