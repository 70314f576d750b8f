package extract

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "workpack-test", Version: "0.1.0"}

func mcpSession(t *testing.T, h *harness) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	h.orch.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_Classify(t *testing.T) {
	h := newHarness(t, fakeBackend{pageCount: 6})
	session := mcpSession(t, h)

	path := writePDF(t, sixPagePDF())
	text := mcpCallTool(t, session, "workpack_classify", map[string]any{"path": path})

	var resp struct {
		Drawings   []int `json:"drawings"`
		Maps       []int `json:"maps"`
		Photos     []int `json:"photos"`
		Forms      []int `json:"forms"`
		TotalPages int   `json:"total_pages"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.TotalPages != 6 {
		t.Errorf("total_pages = %d, want 6", resp.TotalPages)
	}
	if len(resp.Photos) != 2 {
		t.Errorf("photos = %v, want two pages", resp.Photos)
	}
}

func TestMCP_ExtractAndStatus(t *testing.T) {
	h := newHarness(t, fakeBackend{pageCount: 6})
	session := mcpSession(t, h)
	ctx := context.Background()

	path := writePDF(t, sixPagePDF())
	id, _ := h.jobs.CreateJob(ctx, "via mcp", path)

	text := mcpCallTool(t, session, "workpack_extract", map[string]any{"job_id": id})
	var ack struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(text), &ack); err != nil {
		t.Fatal(err)
	}
	if ack.Status != "started" {
		t.Fatalf("status = %q, want started", ack.Status)
	}

	deadline := time.After(10 * time.Second)
	for {
		job, _ := h.jobs.Get(ctx, id)
		if job.ExtractionComplete {
			break
		}
		select {
		case <-deadline:
			t.Fatal("extraction did not complete")
		case <-time.After(20 * time.Millisecond):
		}
	}

	text = mcpCallTool(t, session, "workpack_status", map[string]any{"job_id": id})
	var job struct {
		ExtractionComplete bool `json:"extraction_complete"`
		Assets             []struct {
			Type string `json:"type"`
		} `json:"assets"`
	}
	if err := json.Unmarshal([]byte(text), &job); err != nil {
		t.Fatal(err)
	}
	if !job.ExtractionComplete || len(job.Assets) == 0 {
		t.Fatalf("status = %+v, want complete with assets", job)
	}
}

func TestMCP_ExtractMissingJob(t *testing.T) {
	h := newHarness(t, fakeBackend{pageCount: 1})
	session := mcpSession(t, h)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "workpack_extract",
		Arguments: map[string]any{"job_id": 999},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.GetError() == nil {
		t.Fatal("expected tool error for missing job")
	}
}
