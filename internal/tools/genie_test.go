package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladip1/databricks-genie-mcp/internal/genie"
)

// fakeGateway scripts the per-message status progression keyed by message id.
type fakeGateway struct {
	statuses map[string][]genie.MessageStatus
	fetches  map[string]int
	err      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: make(map[string][]genie.MessageStatus),
		fetches:  make(map[string]int),
	}
}

func (g *fakeGateway) StartConversation(ctx context.Context, spaceID, content string) (*genie.Message, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &genie.Message{
		MessageID:      "M1",
		ConversationID: "C1",
		SpaceID:        spaceID,
		Content:        content,
		Status:         genie.StatusSubmitted,
	}, nil
}

func (g *fakeGateway) CreateMessage(ctx context.Context, spaceID, conversationID, content string) (*genie.Message, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &genie.Message{
		MessageID:      "M2",
		ConversationID: conversationID,
		SpaceID:        spaceID,
		Content:        content,
		Status:         genie.StatusSubmitted,
	}, nil
}

func (g *fakeGateway) GetMessage(ctx context.Context, spaceID, conversationID, messageID string) (*genie.Message, error) {
	if g.err != nil {
		return nil, g.err
	}
	script := g.statuses[messageID]
	i := g.fetches[messageID]
	g.fetches[messageID]++
	status := genie.StatusCompleted
	if len(script) > 0 {
		if i >= len(script) {
			i = len(script) - 1
		}
		status = script[i]
	}
	return &genie.Message{
		MessageID:      messageID,
		ConversationID: conversationID,
		SpaceID:        spaceID,
		Status:         status,
	}, nil
}

func (g *fakeGateway) GetAttachmentQueryResult(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.QueryResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &genie.QueryResult{StatementResponse: &genie.StatementResponse{StatementID: "ST1"}}, nil
}

func (g *fakeGateway) ExecuteAttachmentQuery(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.QueryResult, error) {
	return g.GetAttachmentQueryResult(ctx, spaceID, conversationID, messageID, attachmentID)
}

func (g *fakeGateway) GenerateDownload(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.DownloadResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &genie.DownloadResult{TransientStatementID: "TS1", Status: "RUNNING"}, nil
}

func (g *fakeGateway) GetSpace(ctx context.Context, spaceID string) (*genie.Space, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &genie.Space{SpaceID: spaceID, Title: "Sales"}, nil
}

func newAnalyticsRegistry(t *testing.T, gw Gateway) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterAnalytics(r, gw, genie.NewPoller(gw)); err != nil {
		t.Fatalf("RegisterAnalytics failed: %v", err)
	}
	return r
}

func TestRegisterAnalyticsToolNames(t *testing.T) {
	r := newAnalyticsRegistry(t, newFakeGateway())

	want := []string{
		"start_conversation",
		"create_message",
		"get_message",
		"get_message_attachment_query_result",
		"execute_message_attachment_query",
		"generate_download_full_query_result",
		"get_space",
		"poll_message_until_complete",
	}
	if r.Count() != len(want) {
		t.Errorf("expected %d tools, got %d", len(want), r.Count())
	}
	for _, name := range want {
		if !r.Has(name) {
			t.Errorf("missing tool %s", name)
		}
	}
	for _, def := range r.List() {
		if def.Description == "" {
			t.Errorf("tool %s has no description", def.Name)
		}
		if def.InputSchema == nil {
			t.Errorf("tool %s has no input schema", def.Name)
		}
	}
}

func TestStartConversationTool(t *testing.T) {
	r := newAnalyticsRegistry(t, newFakeGateway())

	result := r.Execute(context.Background(), "start_conversation",
		json.RawMessage(`{"space_id":"S1","content":"hi"}`))
	if IsErrorPayload(result) {
		t.Fatalf("unexpected error payload: %s", result)
	}

	var msg genie.Message
	if err := json.Unmarshal(result, &msg); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if msg.ConversationID != "C1" || msg.MessageID != "M1" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Status != genie.StatusSubmitted {
		t.Errorf("expected SUBMITTED, got %s", msg.Status)
	}
}

func TestToolArgumentValidation(t *testing.T) {
	r := newAnalyticsRegistry(t, newFakeGateway())

	tests := []struct {
		tool string
		args string
		want string
	}{
		{"start_conversation", `{"content":"hi"}`, "space_id is required"},
		{"start_conversation", `{"space_id":"S1"}`, "content is required"},
		{"create_message", `{"space_id":"S1","content":"hi"}`, "conversation_id is required"},
		{"get_message", `{"space_id":"S1","conversation_id":"C1"}`, "message_id is required"},
		{"get_message_attachment_query_result", `{"space_id":"S1","conversation_id":"C1","message_id":"M1"}`, "attachment_id is required"},
		{"get_space", `{}`, "space_id is required"},
		{"get_space", `not json`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.tool+"/"+tt.want, func(t *testing.T) {
			result := r.Execute(context.Background(), tt.tool, json.RawMessage(tt.args))
			if !IsErrorPayload(result) {
				t.Fatalf("expected error payload, got %s", result)
			}
			if tt.want == "" {
				return
			}
			var payload struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(result, &payload); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if payload.Error != tt.want {
				t.Errorf("expected %q, got %q", tt.want, payload.Error)
			}
		})
	}
}

func TestGatewayFailureBecomesErrorPayload(t *testing.T) {
	gw := newFakeGateway()
	gw.err = errors.New("workspace unreachable")
	r := newAnalyticsRegistry(t, gw)

	result := r.Execute(context.Background(), "get_space", json.RawMessage(`{"space_id":"S1"}`))
	if !IsErrorPayload(result) {
		t.Fatalf("expected error payload, got %s", result)
	}
}

// Start a conversation, then poll a message that reports EXECUTING once
// before completing: the poll result must show exactly two polls.
func TestStartThenPollScenario(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses["M1"] = []genie.MessageStatus{genie.StatusExecuting, genie.StatusCompleted}
	r := newAnalyticsRegistry(t, gw)

	start := r.Execute(context.Background(), "start_conversation",
		json.RawMessage(`{"space_id":"S1","content":"hi"}`))
	if IsErrorPayload(start) {
		t.Fatalf("start_conversation failed: %s", start)
	}

	result := r.Execute(context.Background(), "poll_message_until_complete",
		json.RawMessage(`{"space_id":"S1","conversation_id":"C1","message_id":"M1","timeout_seconds":5,"poll_interval_seconds":1}`))
	if IsErrorPayload(result) {
		t.Fatalf("poll failed: %s", result)
	}

	var polled struct {
		Status    genie.MessageStatus `json:"status"`
		PollCount int                 `json:"poll_count"`
	}
	if err := json.Unmarshal(result, &polled); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if polled.Status != genie.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", polled.Status)
	}
	if polled.PollCount != 2 {
		t.Errorf("expected poll_count 2, got %d", polled.PollCount)
	}
}

func TestToolSchemasCarryFieldDescriptions(t *testing.T) {
	r := newAnalyticsRegistry(t, newFakeGateway())

	for _, def := range r.List() {
		if len(def.InputSchema.Properties) == 0 {
			t.Errorf("tool %s has no schema properties", def.Name)
			continue
		}
		for name, prop := range def.InputSchema.Properties {
			if prop.Description == "" {
				t.Errorf("tool %s: property %s has no description", def.Name, name)
			}
		}
	}
}

// capturingPoller records the poll bounds the tool hands down.
type capturingPoller struct {
	opts genie.PollOptions
}

func (p *capturingPoller) Poll(ctx context.Context, spaceID, conversationID, messageID string, opts genie.PollOptions) (*genie.PolledMessage, error) {
	p.opts = opts
	return &genie.PolledMessage{
		Message:   genie.Message{MessageID: messageID, Status: genie.StatusCompleted},
		PollCount: 1,
	}, nil
}

// Omitted bounds select the defaults; explicit values, including zero, pass
// through to the poller untouched.
func TestPollBoundsPassThrough(t *testing.T) {
	tests := []struct {
		name         string
		args         string
		wantTimeout  time.Duration
		wantInterval time.Duration
	}{
		{"defaults", `{"space_id":"S1","conversation_id":"C1","message_id":"M1"}`,
			genie.DefaultPollTimeout, genie.DefaultPollInterval},
		{"explicit", `{"space_id":"S1","conversation_id":"C1","message_id":"M1","timeout_seconds":10,"poll_interval_seconds":2}`,
			10 * time.Second, 2 * time.Second},
		{"explicit zero timeout", `{"space_id":"S1","conversation_id":"C1","message_id":"M1","timeout_seconds":0}`,
			0, genie.DefaultPollInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			poller := &capturingPoller{}
			if err := RegisterAnalytics(r, newFakeGateway(), poller); err != nil {
				t.Fatalf("RegisterAnalytics failed: %v", err)
			}

			result := r.Execute(context.Background(), "poll_message_until_complete", json.RawMessage(tt.args))
			if IsErrorPayload(result) {
				t.Fatalf("unexpected error payload: %s", result)
			}
			if poller.opts.Timeout != tt.wantTimeout {
				t.Errorf("expected timeout %v, got %v", tt.wantTimeout, poller.opts.Timeout)
			}
			if poller.opts.Interval != tt.wantInterval {
				t.Errorf("expected interval %v, got %v", tt.wantInterval, poller.opts.Interval)
			}
		})
	}
}

// A zero timeout is an immediate timeout outcome: no fetches, poll_count 0.
func TestPollZeroTimeoutSkipsPolling(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses["M1"] = []genie.MessageStatus{genie.StatusExecuting}
	r := newAnalyticsRegistry(t, gw)

	result := r.Execute(context.Background(), "poll_message_until_complete",
		json.RawMessage(`{"space_id":"S1","conversation_id":"C1","message_id":"M1","timeout_seconds":0}`))

	var payload struct {
		Error     string `json:"error"`
		PollCount int    `json:"poll_count"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Error == "" {
		t.Fatalf("expected a timeout payload, got %s", result)
	}
	if payload.PollCount != 0 {
		t.Errorf("expected poll_count 0, got %d", payload.PollCount)
	}
	if gw.fetches["M1"] != 0 {
		t.Errorf("expected no fetches, got %d", gw.fetches["M1"])
	}
}

func TestPollZeroIntervalIsInvalid(t *testing.T) {
	r := newAnalyticsRegistry(t, newFakeGateway())

	result := r.Execute(context.Background(), "poll_message_until_complete",
		json.RawMessage(`{"space_id":"S1","conversation_id":"C1","message_id":"M1","poll_interval_seconds":0}`))
	if !IsErrorPayload(result) {
		t.Fatalf("expected error payload, got %s", result)
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !strings.Contains(payload.Error, "poll interval must be positive") {
		t.Errorf("unexpected error %q", payload.Error)
	}
}

func TestPollTimeoutPayload(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses["M1"] = []genie.MessageStatus{genie.StatusExecuting}
	r := newAnalyticsRegistry(t, gw)

	start := time.Now()
	result := r.Execute(context.Background(), "poll_message_until_complete",
		json.RawMessage(`{"space_id":"S1","conversation_id":"C1","message_id":"M1","timeout_seconds":1,"poll_interval_seconds":1}`))
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("poll returned before the budget elapsed: %v", elapsed)
	}

	var payload struct {
		Error       string              `json:"error"`
		Status      genie.MessageStatus `json:"status"`
		PollCount   int                 `json:"poll_count"`
		ElapsedTime float64             `json:"elapsed_time"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Error == "" {
		t.Fatalf("expected a timeout payload, got %s", result)
	}
	if payload.Status != genie.StatusExecuting {
		t.Errorf("expected last status EXECUTING, got %s", payload.Status)
	}
	if payload.ElapsedTime < 1 {
		t.Errorf("expected elapsed_time >= 1, got %v", payload.ElapsedTime)
	}
}
