package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vladip1/databricks-genie-mcp/internal/genie"
	"github.com/vladip1/databricks-genie-mcp/internal/tools"
)

// fakeGateway serves canned Genie responses so protocol tests exercise the
// full tool path without a workspace.
type fakeGateway struct {
	spaces map[string]*genie.Space
}

func (g *fakeGateway) StartConversation(ctx context.Context, spaceID, content string) (*genie.Message, error) {
	return &genie.Message{
		MessageID:      "M1",
		ConversationID: "C1",
		SpaceID:        spaceID,
		Content:        content,
		Status:         genie.StatusCompleted,
	}, nil
}

func (g *fakeGateway) CreateMessage(ctx context.Context, spaceID, conversationID, content string) (*genie.Message, error) {
	return &genie.Message{
		MessageID:      "M2",
		ConversationID: conversationID,
		SpaceID:        spaceID,
		Content:        content,
		Status:         genie.StatusCompleted,
	}, nil
}

func (g *fakeGateway) GetMessage(ctx context.Context, spaceID, conversationID, messageID string) (*genie.Message, error) {
	return &genie.Message{
		MessageID:      messageID,
		ConversationID: conversationID,
		SpaceID:        spaceID,
		Status:         genie.StatusCompleted,
	}, nil
}

func (g *fakeGateway) GetAttachmentQueryResult(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.QueryResult, error) {
	return &genie.QueryResult{}, nil
}

func (g *fakeGateway) ExecuteAttachmentQuery(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.QueryResult, error) {
	return &genie.QueryResult{}, nil
}

func (g *fakeGateway) GenerateDownload(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.DownloadResult, error) {
	return &genie.DownloadResult{}, nil
}

func (g *fakeGateway) GetSpace(ctx context.Context, spaceID string) (*genie.Space, error) {
	space, ok := g.spaces[spaceID]
	if !ok {
		return nil, fmt.Errorf("space %s not found", spaceID)
	}
	return space, nil
}

func newAnalyticsServer(t *testing.T) *Server {
	t.Helper()

	gw := &fakeGateway{spaces: map[string]*genie.Space{
		"S1": {SpaceID: "S1", Title: "Sales Analytics"},
	}}
	registry := tools.NewRegistry()
	if err := tools.RegisterAnalytics(registry, gw, genie.NewPoller(gw)); err != nil {
		t.Fatalf("RegisterAnalytics() unexpected error: %v", err)
	}

	server, err := NewServer(Config{Name: "genie", Version: "1.0.0"}, registry)
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}
	return server
}

// connectServer connects an SDK client to the server via in-memory
// transports and returns the client session for making protocol calls.
func connectServer(t *testing.T, server *Server) *mcp.ClientSession {
	t.Helper()

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server.Connect() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client.Connect() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func TestNewServerValidation(t *testing.T) {
	registry := tools.NewRegistry()

	if _, err := NewServer(Config{Version: "1.0.0"}, registry); err == nil {
		t.Error("NewServer() without name expected error, got nil")
	}
	if _, err := NewServer(Config{Name: "genie"}, registry); err == nil {
		t.Error("NewServer() without version expected error, got nil")
	}
	if _, err := NewServer(Config{Name: "genie", Version: "1.0.0"}, nil); err == nil {
		t.Error("NewServer() without registry expected error, got nil")
	}
}

func TestListToolsExposesRegistry(t *testing.T) {
	session := connectServer(t, newAnalyticsServer(t))

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools() unexpected error: %v", err)
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	wantNames := []string{
		"create_message",
		"execute_message_attachment_query",
		"generate_download_full_query_result",
		"get_message",
		"get_message_attachment_query_result",
		"get_space",
		"poll_message_until_complete",
		"start_conversation",
	}
	if len(names) != len(wantNames) {
		t.Fatalf("ListTools() returned %d tools, want %d\ngot: %v", len(names), len(wantNames), names)
	}
	for i, got := range names {
		if got != wantNames[i] {
			t.Errorf("ListTools() tool[%d] = %q, want %q", i, got, wantNames[i])
		}
	}
}

func TestCallToolGetSpace(t *testing.T) {
	session := connectServer(t, newAnalyticsServer(t))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_space",
		Arguments: map[string]any{"space_id": "S1"},
	})
	if err != nil {
		t.Fatalf("CallTool(get_space) unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool(get_space) returned error result: %v", result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatal("CallTool(get_space) returned empty content")
	}

	textContent, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(get_space) content[0] type = %T, want *mcp.TextContent", result.Content[0])
	}

	var space genie.Space
	if err := json.Unmarshal([]byte(textContent.Text), &space); err != nil {
		t.Fatalf("CallTool(get_space) parsing JSON: %v\ntext: %s", err, textContent.Text)
	}
	if space.Title != "Sales Analytics" {
		t.Errorf("CallTool(get_space) title = %q, want %q", space.Title, "Sales Analytics")
	}
}

func TestCallToolStartConversation(t *testing.T) {
	session := connectServer(t, newAnalyticsServer(t))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "start_conversation",
		Arguments: map[string]any{
			"space_id": "S1",
			"content":  "total revenue by region",
		},
	})
	if err != nil {
		t.Fatalf("CallTool(start_conversation) unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool(start_conversation) returned error result: %v", result.Content)
	}

	textContent := result.Content[0].(*mcp.TextContent)
	var msg genie.Message
	if err := json.Unmarshal([]byte(textContent.Text), &msg); err != nil {
		t.Fatalf("CallTool(start_conversation) parsing JSON: %v", err)
	}
	if msg.ConversationID != "C1" || msg.MessageID != "M1" {
		t.Errorf("CallTool(start_conversation) ids = %s/%s, want C1/M1", msg.ConversationID, msg.MessageID)
	}
}

func TestCallToolFailureIsErrorResult(t *testing.T) {
	session := connectServer(t, newAnalyticsServer(t))

	// Gateway failure: unknown space.
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_space",
		Arguments: map[string]any{"space_id": "missing"},
	})
	if err != nil {
		t.Fatalf("CallTool(get_space) unexpected protocol error: %v", err)
	}
	if !result.IsError {
		t.Fatal("CallTool(get_space) with unknown space: IsError = false, want true")
	}
	textContent := result.Content[0].(*mcp.TextContent)
	if !strings.Contains(textContent.Text, "not found") {
		t.Errorf("CallTool(get_space) error text = %q, want mention of missing space", textContent.Text)
	}

	// Missing required argument: the SDK may reject it against the input
	// schema before the handler runs, or the registry turns it into an
	// error payload. Either way the call must not succeed.
	result, err = session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_message",
		Arguments: map[string]any{"space_id": "S1"},
	})
	if err == nil && !result.IsError {
		t.Fatal("CallTool(get_message) without ids succeeded, want failure")
	}
}
