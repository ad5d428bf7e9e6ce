// Package registry connects to the remote tool registries, one per stage,
// and selects the tool set that backs a chat request.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/config"
)

// APIKeyHeader carries the registry API key on every request.
const APIKeyHeader = "x-api-key"

// Endpoint locates one stage's tool registry.
type Endpoint struct {
	URL    string
	APIKey string
}

// Client is an initialized MCP session with one stage's registry.
type Client struct {
	stage chat.Stage
	mc    *client.Client
}

// Dial opens a streamable HTTP session with the registry at ep and
// completes the MCP initialize handshake.
func Dial(ctx context.Context, stage chat.Stage, ep Endpoint) (*Client, error) {
	mc, err := client.NewStreamableHttpClient(ep.URL,
		transport.WithHTTPHeaders(map[string]string{APIKeyHeader: ep.APIKey}),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s registry client: %w", stage, err)
	}

	if err := mc.Start(ctx); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("start %s registry client: %w", stage, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "awschat",
		Version: config.Version,
	}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("initialize %s registry: %w", stage, err)
	}

	return &Client{stage: stage, mc: mc}, nil
}

// Stage returns the stage this client is bound to.
func (c *Client) Stage() chat.Stage { return c.stage }

// Tools lists the registry's callable tools.
func (c *Client) Tools(ctx context.Context) (*ToolSet, error) {
	res, err := c.mc.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list %s tools: %w", c.stage, err)
	}

	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := inputSchema(t)
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w", t.Name, err)
		}
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return NewToolSet(c.stage, c, tools...), nil
}

// Call invokes a tool and returns the registry's result object as JSON.
// isError reports a result the tool itself flagged as failed.
func (c *Client) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, bool, error) {
	args := map[string]any{}
	if len(input) > 0 && string(input) != "null" {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, false, fmt.Errorf("decode %s input: %w", name, err)
		}
	}

	res, err := c.mc.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, false, fmt.Errorf("call %s tool %s: %w", c.stage, name, err)
	}

	out, err := json.Marshal(res)
	if err != nil {
		return nil, false, fmt.Errorf("encode %s result: %w", name, err)
	}
	return out, res.IsError, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.mc.Close()
}

// inputSchema extracts the JSON schema the registry advertised for t,
// preferring a raw schema when one was sent.
func inputSchema(t mcp.Tool) (json.RawMessage, error) {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema, nil
	}
	return json.Marshal(t.InputSchema)
}
