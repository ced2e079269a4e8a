package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vladip1/databricks-genie-mcp/internal/genie"
	"github.com/vladip1/databricks-genie-mcp/internal/tools"
	"github.com/vladip1/databricks-genie-mcp/internal/ui"
)

// chatSession tracks the active Genie context for slash commands. Plain
// input goes to the agent; /commands drive the tools directly, the way an
// analyst steps through a conversation by hand.
type chatSession struct {
	registry *tools.Registry

	spaceID        string
	conversationID string
	messageID      string
	attachmentID   string
}

const chatHelp = `Commands:
  /use_space <id>      select the Genie space
  /info_space          describe the selected space
  /start <question>    start a conversation with a question
  /reply <question>    ask a follow-up in the current conversation
  /get                 fetch the current message
  /poll                poll the current message until complete
  /query               fetch the query result of the last attachment
  /execute             re-run the query of the last attachment
  /download            generate a full result download
  /help                show this help
Anything else is sent to the agent.`

// Handle runs input as a slash command when it is one. It reports whether
// the input was consumed; plain questions return false and go to the agent.
func (s *chatSession) Handle(ctx context.Context, input string, sink ui.Sink) bool {
	if !strings.HasPrefix(input, "/") {
		return false
	}
	fields := strings.Fields(input)
	cmd, rest := fields[0], strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch cmd {
	case "/help":
		sink.Delta(chatHelp)
		sink.Done()

	case "/use_space":
		if rest == "" {
			s.fail(sink, "usage: /use_space <space-id>")
			return true
		}
		s.spaceID = rest
		s.conversationID, s.messageID, s.attachmentID = "", "", ""
		sink.Delta("Space selected: " + rest)
		sink.Done()

	case "/info_space":
		if !s.require(sink, s.spaceID != "", "select a space first with /use_space") {
			return true
		}
		s.run(ctx, sink, "get_space", map[string]any{"space_id": s.spaceID}, nil)

	case "/start":
		if rest == "" {
			s.fail(sink, "usage: /start <question>")
			return true
		}
		if !s.require(sink, s.spaceID != "", "select a space first with /use_space") {
			return true
		}
		s.run(ctx, sink, "start_conversation",
			map[string]any{"space_id": s.spaceID, "content": rest}, s.trackMessage)

	case "/reply":
		if rest == "" {
			s.fail(sink, "usage: /reply <question>")
			return true
		}
		if !s.require(sink, s.conversationID != "", "start a conversation first with /start") {
			return true
		}
		s.run(ctx, sink, "create_message",
			map[string]any{"space_id": s.spaceID, "conversation_id": s.conversationID, "content": rest},
			s.trackMessage)

	case "/get", "/poll":
		if !s.require(sink, s.messageID != "", "no current message; use /start or /reply") {
			return true
		}
		tool := "get_message"
		if cmd == "/poll" {
			tool = "poll_message_until_complete"
		}
		s.run(ctx, sink, tool, map[string]any{
			"space_id":        s.spaceID,
			"conversation_id": s.conversationID,
			"message_id":      s.messageID,
		}, s.trackMessage)

	case "/query", "/execute", "/download":
		if !s.require(sink, s.attachmentID != "", "no query attachment; /poll a completed message first") {
			return true
		}
		tool := map[string]string{
			"/query":    "get_message_attachment_query_result",
			"/execute":  "execute_message_attachment_query",
			"/download": "generate_download_full_query_result",
		}[cmd]
		s.run(ctx, sink, tool, map[string]any{
			"space_id":        s.spaceID,
			"conversation_id": s.conversationID,
			"message_id":      s.messageID,
			"attachment_id":   s.attachmentID,
		}, nil)

	default:
		s.fail(sink, "unknown command "+cmd+"; try /help")
	}
	return true
}

func (s *chatSession) run(ctx context.Context, sink ui.Sink, tool string, args map[string]any, track func([]byte)) {
	raw, err := json.Marshal(args)
	if err != nil {
		s.fail(sink, err.Error())
		return
	}
	payload := s.registry.Execute(ctx, tool, raw)
	if tools.IsErrorPayload(payload) {
		sink.ToolResult(tool, string(payload), true)
		sink.Done()
		return
	}
	if track != nil {
		track(payload)
	}
	sink.Delta(prettyJSON(payload))
	sink.Done()
}

// trackMessage remembers the conversation, message, and first query
// attachment from a message-shaped payload.
func (s *chatSession) trackMessage(payload []byte) {
	var msg genie.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	if msg.ConversationID != "" {
		s.conversationID = msg.ConversationID
	}
	if msg.MessageID != "" {
		s.messageID = msg.MessageID
	}
	for _, att := range msg.Attachments {
		if att.Query != nil {
			s.attachmentID = att.AttachmentID
			break
		}
	}
}

func (s *chatSession) require(sink ui.Sink, ok bool, msg string) bool {
	if !ok {
		s.fail(sink, msg)
	}
	return ok
}

func (s *chatSession) fail(sink ui.Sink, msg string) {
	sink.Error(fmt.Errorf("%s", msg))
}

func prettyJSON(raw []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
