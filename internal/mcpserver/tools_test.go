package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/awschat/internal/chat"
)

// --- Helpers ---

func makeRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is %T, not TextContent", result.Content[0])
	}
	return tc.Text
}

// --- Tests ---

func TestListRegions_TaggedWithStage(t *testing.T) {
	s := NewServer(chat.StageTest, "", nil)

	result, err := s.handleListRegions(context.Background(), makeRequest("list_regions", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}

	var got []region
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if len(got) != len(regions) {
		t.Fatalf("expected %d regions, got %d", len(regions), len(got))
	}
	for _, r := range got {
		if r.Stage != "test" {
			t.Errorf("region %s tagged with stage %q", r.Name, r.Stage)
		}
	}
}

func TestListRegions_PrefixAndLimit(t *testing.T) {
	s := NewServer(chat.StageProd, "", nil)

	result, err := s.handleListRegions(context.Background(), makeRequest("list_regions", map[string]any{
		"prefix": "us-",
		"limit":  3,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []region
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 regions, got %d", len(got))
	}
	for _, r := range got {
		if !strings.HasPrefix(r.Name, "us-") {
			t.Errorf("unexpected region %s", r.Name)
		}
	}
}

func TestListRegions_NegativeLimit(t *testing.T) {
	s := NewServer(chat.StageProd, "", nil)

	result, err := s.handleListRegions(context.Background(), makeRequest("list_regions", map[string]any{"limit": -1}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for negative limit")
	}
}

func TestDescribeStage(t *testing.T) {
	s := NewServer(chat.StageProd, "", nil)

	result, err := s.handleDescribeStage(context.Background(), makeRequest("describe_stage", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got stageResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if got.Stage != "prod" {
		t.Errorf("expected stage prod, got %q", got.Stage)
	}
	if len(got.Accounts) != 2 || got.Accounts[0].Alias != "prod-workloads" {
		t.Errorf("unexpected accounts: %+v", got.Accounts)
	}
}

func TestEcho(t *testing.T) {
	s := NewServer(chat.StageTest, "", nil)

	result, err := s.handleEcho(context.Background(), makeRequest("echo", map[string]any{"text": "line1\nline2"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resultText(t, result); got != "line1\nline2" {
		t.Errorf("expected echoed text, got %q", got)
	}

	result, err = s.handleEcho(context.Background(), makeRequest("echo", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for missing text")
	}
}

func TestHandler_RequiresAPIKey(t *testing.T) {
	s := NewServer(chat.StageTest, "secret", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, "wrong")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
