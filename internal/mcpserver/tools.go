package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// --- Tool Definitions ---

func listRegionsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list_regions",
		"List the AWS regions enabled for this stage, with their partition and opt-in status.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {
					"type": "integer",
					"description": "Maximum number of regions to return (default: all)"
				},
				"prefix": {
					"type": "string",
					"description": "Only return regions whose name starts with this prefix"
				}
			}
		}`),
	)
}

func describeStageTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"describe_stage",
		"Describe the deployment stage this registry serves, including its accounts.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func echoTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"echo",
		"Return the given text unchanged. Useful for checking connectivity.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {
					"type": "string",
					"description": "Text to echo back"
				}
			},
			"required": ["text"]
		}`),
	)
}

// --- Tool Handlers ---

// region mirrors one list_regions entry.
type region struct {
	Name      string `json:"name"`
	Partition string `json:"partition"`
	OptIn     bool   `json:"opt_in"`
	Stage     string `json:"stage"`
}

var regions = []struct {
	name      string
	partition string
	optIn     bool
}{
	{"us-east-1", "aws", false},
	{"us-east-2", "aws", false},
	{"us-west-1", "aws", false},
	{"us-west-2", "aws", false},
	{"eu-west-1", "aws", false},
	{"eu-central-1", "aws", false},
	{"eu-south-1", "aws", true},
	{"ap-southeast-1", "aws", false},
	{"ap-northeast-1", "aws", false},
	{"ap-east-1", "aws", true},
	{"sa-east-1", "aws", false},
	{"me-south-1", "aws", true},
}

type listRegionsArgs struct {
	Limit  int    `json:"limit"`
	Prefix string `json:"prefix"`
}

func (s *Server) handleListRegions(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listRegionsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	out := make([]region, 0, len(regions))
	for _, r := range regions {
		if !strings.HasPrefix(r.name, args.Prefix) {
			continue
		}
		out = append(out, region{Name: r.name, Partition: r.partition, OptIn: r.optIn, Stage: string(s.stage)})
		if args.Limit > 0 && len(out) == args.Limit {
			break
		}
	}

	s.log.Debug("list_regions", zap.Int("regions", len(out)))
	return resultJSON(out)
}

// stageResult mirrors the describe_stage response.
type stageResult struct {
	Stage    string          `json:"stage"`
	Accounts []accountResult `json:"accounts"`
}

type accountResult struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

func (s *Server) handleDescribeStage(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(stageResult{
		Stage: string(s.stage),
		Accounts: []accountResult{
			{ID: "111111111111", Alias: string(s.stage) + "-workloads"},
			{ID: "222222222222", Alias: string(s.stage) + "-shared"},
		},
	})
}

type echoArgs struct {
	Text string `json:"text"`
}

func (s *Server) handleEcho(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args echoArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	return mcp.NewToolResultText(args.Text), nil
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
