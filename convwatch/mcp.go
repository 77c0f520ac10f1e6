package convwatch

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
	"github.com/hazyhaar/convwatch/kit"
)

// RegisterMCP registers convwatch tools on an MCP server:
// convwatch_list, convwatch_get, convwatch_search, convwatch_rescan,
// convwatch_focus.
func (w *Watcher) RegisterMCP(srv *mcp.Server) {
	w.registerListTool(srv)
	w.registerGetTool(srv)
	w.registerSearchTool(srv)
	w.registerRescanTool(srv)
	w.registerFocusTool(srv)
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

func (w *Watcher) endpoint(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Logging(w.logger, name)(e)
}

var (
	convIDProp = map[string]any{"type": "string", "description": "Conversation id (the path segment after /c/)"}
	pageIDProp = map[string]any{"type": "string", "description": "Observed page id; optional when a single page is observed"}
)

// --- list ---

type listReq struct{}

func (w *Watcher) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "convwatch_list",
		Description: "List captured conversations, most recently updated first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		list, err := w.store.List(ctx)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []conversation.Summary{}
		}
		return map[string]any{"conversations": list}, nil
	}
	kit.RegisterMCPTool(srv, tool, w.endpoint(tool.Name, endpoint), kit.DecodeArgs[listReq]())
}

// --- get ---

type getReq struct {
	ConvID string `json:"conv_id"`
}

func (w *Watcher) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "convwatch_get",
		Description: "Get the captured snapshot of a conversation: every message with role, position and preview.",
		InputSchema: inputSchema(map[string]any{"conv_id": convIDProp}, []string{"conv_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getReq)
		if r.ConvID == "" {
			return nil, errors.New("conv_id is required")
		}
		snap, err := w.store.Load(ctx, r.ConvID)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, errors.New("conversation not found")
		}
		return snap, nil
	}
	kit.RegisterMCPTool(srv, tool, w.endpoint(tool.Name, endpoint), kit.DecodeArgs[getReq]())
}

// --- search ---

type searchReq struct {
	ConvID string `json:"conv_id"`
	Query  string `json:"query"`
	Fuzzy  bool   `json:"fuzzy"`
}

func (w *Watcher) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "convwatch_search",
		Description: "Search message previews of a conversation. Substring match by default; fuzzy ranks approximate matches.",
		InputSchema: inputSchema(map[string]any{
			"conv_id": convIDProp,
			"query":   map[string]any{"type": "string", "description": "Text to look for"},
			"fuzzy":   map[string]any{"type": "boolean", "description": "Rank approximate matches"},
		}, []string{"conv_id", "query"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchReq)
		if r.ConvID == "" || r.Query == "" {
			return nil, errors.New("conv_id and query are required")
		}
		items, err := w.store.Search(ctx, r.ConvID, r.Query, r.Fuzzy)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []conversation.MessageItem{}
		}
		return map[string]any{"items": items}, nil
	}
	kit.RegisterMCPTool(srv, tool, w.endpoint(tool.Name, endpoint), kit.DecodeArgs[searchReq]())
}

// --- rescan ---

type rescanReq struct {
	PageID string `json:"page_id"`
	ConvID string `json:"conv_id"`
}

func (w *Watcher) registerRescanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "convwatch_rescan",
		Description: "Scroll an observed conversation to its top, capturing every turn on the way, then restore the scroll position.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp, "conv_id": convIDProp}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*rescanReq)
		resp := w.Handle(ctx, conversation.Command{Type: conversation.CommandRescan, PageID: r.PageID, ConvID: r.ConvID})
		if !resp.OK {
			return nil, errors.New(resp.Error)
		}
		return resp, nil
	}
	kit.RegisterMCPTool(srv, tool, w.endpoint(tool.Name, endpoint), kit.DecodeArgs[rescanReq]())
}

// --- focus ---

type focusReq struct {
	MsgID  string `json:"msg_id"`
	Index  *int   `json:"index"`
	PageID string `json:"page_id"`
	ConvID string `json:"conv_id"`
}

func (w *Watcher) registerFocusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "convwatch_focus",
		Description: "Scroll an observed page to a message and highlight it briefly. The index is used when the id is no longer on the page.",
		InputSchema: inputSchema(map[string]any{
			"msg_id":  map[string]any{"type": "string", "description": "Message id (msg-xxxxxxxx)"},
			"index":   map[string]any{"type": "integer", "description": "Position of the message in the conversation"},
			"page_id": pageIDProp,
			"conv_id": convIDProp,
		}, []string{"msg_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*focusReq)
		resp := w.Handle(ctx, conversation.Command{
			Type:   conversation.CommandFocus,
			MsgID:  r.MsgID,
			Index:  r.Index,
			PageID: r.PageID,
			ConvID: r.ConvID,
		})
		if !resp.OK {
			return nil, errors.New(resp.Error)
		}
		return resp, nil
	}
	kit.RegisterMCPTool(srv, tool, w.endpoint(tool.Name, endpoint), kit.DecodeArgs[focusReq]())
}
