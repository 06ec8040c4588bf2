// Package mcpimport connects to external MCP servers and registers their tool
// catalogues as capabilities. This is how third-party integrations extend the
// gateway without touching its code: each imported tool becomes a descriptor
// named "<server>.<tool>" whose handler proxies the call over the session.
//
// Import happens during the registration phase at startup, before the
// registry is frozen.
package mcpimport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxgate/voxgate/internal/capability"
	"github.com/voxgate/voxgate/internal/config"
)

// Importer owns the client sessions to all configured MCP servers. Keep it
// alive for the lifetime of the process; imported handlers call through its
// sessions. Close it on shutdown.
type Importer struct {
	mu       sync.Mutex
	client   *mcpsdk.Client
	sessions map[string]*mcpsdk.ClientSession
}

// New creates an Importer. The underlying SDK client is reused across all
// server connections.
func New() *Importer {
	return &Importer{
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "voxgate-mcpimport", Version: "1.0.0"},
			nil,
		),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// ImportAll connects to every configured server and registers its tools into
// reg. A server that cannot be reached fails the whole import; startup should
// not silently lose capabilities.
func (im *Importer) ImportAll(ctx context.Context, reg *capability.Registry, servers []config.MCPServerConfig) error {
	for _, srv := range servers {
		if err := im.importServer(ctx, reg, srv); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) importServer(ctx context.Context, reg *capability.Registry, cfg config.MCPServerConfig) error {
	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		return err
	}

	session, err := im.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcpimport: connect to server %q: %w", cfg.Name, err)
	}

	var count int
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcpimport: list tools for server %q: %w", cfg.Name, err)
		}

		desc := buildDescriptor(session, cfg, *tool)
		if err := reg.Register(desc); err != nil {
			_ = session.Close()
			return fmt.Errorf("mcpimport: register tool %q from server %q: %w", tool.Name, cfg.Name, err)
		}
		count++
	}

	im.mu.Lock()
	im.sessions[cfg.Name] = session
	im.mu.Unlock()

	slog.Info("imported MCP server tools", "server", cfg.Name, "tools", count)
	return nil
}

// Close shuts down all server sessions. After Close the imported handlers
// fail; call it only on process shutdown.
func (im *Importer) Close() error {
	im.mu.Lock()
	defer im.mu.Unlock()

	var firstErr error
	for name, session := range im.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcpimport: close server %q: %w", name, err)
		}
		delete(im.sessions, name)
	}
	return firstErr
}

func buildTransport(ctx context.Context, cfg config.MCPServerConfig) (mcpsdk.Transport, error) {
	transport := cfg.Transport
	if transport == "" && cfg.Command != "" {
		transport = config.TransportStdio
	}

	switch transport {
	case config.TransportStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("mcpimport: stdio server %q requires a command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		return &mcpsdk.CommandTransport{Command: cmd}, nil

	case config.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcpimport: streamable-http server %q requires a URL", cfg.Name)
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil

	default:
		return nil, fmt.Errorf("mcpimport: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}
}

// buildDescriptor converts an SDK tool into a capability descriptor whose
// handler proxies through the live session.
func buildDescriptor(session *mcpsdk.ClientSession, cfg config.MCPServerConfig, tool mcpsdk.Tool) *capability.Descriptor {
	mode := capability.ModeWait
	if cfg.FireAndForget {
		mode = capability.ModeFireAndForget
	}

	return &capability.Descriptor{
		Name:        cfg.Name + "." + tool.Name,
		Description: tool.Description,
		Params:      schemaParams(tool.InputSchema),
		Mode:        mode,
		Timeout:     cfg.Timeout.Std(),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
				Name:      tool.Name,
				Arguments: args,
			})
			if err != nil {
				return nil, fmt.Errorf("mcpimport: call tool %q on server %q: %w", tool.Name, cfg.Name, err)
			}

			var sb strings.Builder
			for _, c := range result.Content {
				if tc, ok := c.(*mcpsdk.TextContent); ok {
					sb.WriteString(tc.Text)
				}
			}
			if result.IsError {
				return nil, fmt.Errorf("mcpimport: tool %q reported an error: %s", tool.Name, sb.String())
			}
			return sb.String(), nil
		},
	}
}

// schemaParams flattens a JSON-Schema object into the capability parameter
// list. Unsupported property types degrade to string so the model can still
// pass them through.
func schemaParams(schema any) []capability.Param {
	m := schemaToMap(schema)
	props, ok := m["properties"].(map[string]any)
	if !ok {
		return nil
	}

	required := make(map[string]bool)
	switch req := m["required"].(type) {
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	case []string:
		for _, s := range req {
			required[s] = true
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]capability.Param, 0, len(props))
	for _, name := range names {
		raw := props[name]
		prop, _ := raw.(map[string]any)
		p := capability.Param{
			Name:     name,
			Type:     capability.TypeString,
			Required: required[name],
		}
		if prop != nil {
			if desc, ok := prop["description"].(string); ok {
				p.Description = desc
			}
			if ts, ok := prop["type"].(string); ok {
				if pt := capability.ParamType(ts); pt.IsValid() {
					p.Type = pt
				}
			}
			if def, ok := prop["default"]; ok {
				p.Default = def
			}
		}
		params = append(params, p)
	}
	return params
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
