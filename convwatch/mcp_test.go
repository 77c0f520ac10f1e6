package convwatch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
)

var testMCPImpl = &mcp.Implementation{Name: "convwatch-test", Version: "0.0.1"}

func setupMCP(t *testing.T) (*Page, *mcp.ClientSession) {
	t.Helper()
	w := newTestWatcher(t)
	p, _ := attach(t, w, "p1", "abc")
	srv := mcp.NewServer(testMCPImpl, nil)
	w.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return p, session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content is %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestMCP_ToolsListed(t *testing.T) {
	_, session := setupMCP(t)
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"convwatch_list", "convwatch_get", "convwatch_search", "convwatch_rescan", "convwatch_focus"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

func TestMCP_RescanThenRead(t *testing.T) {
	_, session := setupMCP(t)

	if text, isErr := callTool(t, session, "convwatch_rescan", map[string]any{}); isErr {
		t.Fatalf("rescan: %s", text)
	}

	text, isErr := callTool(t, session, "convwatch_list", map[string]any{})
	if isErr {
		t.Fatalf("list: %s", text)
	}
	var list struct {
		Conversations []conversation.Summary `json:"conversations"`
	}
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Conversations) != 1 || list.Conversations[0].ConvID != "abc" {
		t.Fatalf("list = %s", text)
	}

	text, isErr = callTool(t, session, "convwatch_get", map[string]any{"conv_id": "abc"})
	if isErr {
		t.Fatalf("get: %s", text)
	}
	var snap conversation.Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("snapshot = %s", text)
	}

	text, isErr = callTool(t, session, "convwatch_search", map[string]any{"conv_id": "abc", "query": "standard"})
	if isErr {
		t.Fatalf("search: %s", text)
	}
	var found struct {
		Items []conversation.MessageItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(text), &found); err != nil {
		t.Fatal(err)
	}
	if len(found.Items) != 1 || found.Items[0].Role != conversation.RoleAssistant {
		t.Fatalf("search = %s", text)
	}
}

func TestMCP_Focus(t *testing.T) {
	p, session := setupMCP(t)
	res, err := p.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	id := res.Snapshot.Items[0].MsgID

	if text, isErr := callTool(t, session, "convwatch_focus", map[string]any{"msg_id": id}); isErr {
		t.Fatalf("focus: %s", text)
	}
	if text, isErr := callTool(t, session, "convwatch_focus", map[string]any{"msg_id": id, "page_id": "other"}); !isErr || !strings.Contains(text, "no matching page") {
		t.Fatalf("focus on unknown page: %s", text)
	}
}

func TestMCP_GetMissing(t *testing.T) {
	_, session := setupMCP(t)
	text, isErr := callTool(t, session, "convwatch_get", map[string]any{"conv_id": "nope"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Fatalf("get missing: %v %s", isErr, text)
	}
}
