package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/vladip1/databricks-genie-mcp/internal/genie"
)

// Gateway is the slice of the workspace client the tools need.
type Gateway interface {
	StartConversation(ctx context.Context, spaceID, content string) (*genie.Message, error)
	CreateMessage(ctx context.Context, spaceID, conversationID, content string) (*genie.Message, error)
	GetMessage(ctx context.Context, spaceID, conversationID, messageID string) (*genie.Message, error)
	GetAttachmentQueryResult(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.QueryResult, error)
	ExecuteAttachmentQuery(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.QueryResult, error)
	GenerateDownload(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*genie.DownloadResult, error)
	GetSpace(ctx context.Context, spaceID string) (*genie.Space, error)
}

// CompletionPoller drives a message to a terminal status.
type CompletionPoller interface {
	Poll(ctx context.Context, spaceID, conversationID, messageID string, opts genie.PollOptions) (*genie.PolledMessage, error)
}

// StartConversationInput starts a new conversation in a space.
type StartConversationInput struct {
	SpaceID string `json:"space_id" jsonschema:"The Genie space to start the conversation in"`
	Content string `json:"content" jsonschema:"The initial natural-language question"`
}

// CreateMessageInput appends a message to an existing conversation.
type CreateMessageInput struct {
	SpaceID        string `json:"space_id" jsonschema:"The Genie space of the conversation"`
	ConversationID string `json:"conversation_id" jsonschema:"The conversation to append to"`
	Content        string `json:"content" jsonschema:"The follow-up question"`
}

// MessageInput identifies one message in a conversation.
type MessageInput struct {
	SpaceID        string `json:"space_id" jsonschema:"The Genie space of the conversation"`
	ConversationID string `json:"conversation_id" jsonschema:"The conversation containing the message"`
	MessageID      string `json:"message_id" jsonschema:"The message to fetch"`
}

// AttachmentInput identifies one query attachment on a message.
type AttachmentInput struct {
	SpaceID        string `json:"space_id" jsonschema:"The Genie space of the conversation"`
	ConversationID string `json:"conversation_id" jsonschema:"The conversation containing the message"`
	MessageID      string `json:"message_id" jsonschema:"The message carrying the attachment"`
	AttachmentID   string `json:"attachment_id" jsonschema:"The query attachment"`
}

// SpaceInput identifies a Genie space.
type SpaceInput struct {
	SpaceID string `json:"space_id" jsonschema:"The Genie space to describe"`
}

// PollMessageInput polls a message until it reaches a terminal status.
// Omitted bounds select the defaults (600s budget, 5s interval).
type PollMessageInput struct {
	SpaceID             string `json:"space_id" jsonschema:"The Genie space of the conversation"`
	ConversationID      string `json:"conversation_id" jsonschema:"The conversation containing the message"`
	MessageID           string `json:"message_id" jsonschema:"The message to poll"`
	TimeoutSeconds      *int   `json:"timeout_seconds,omitempty" jsonschema:"Wall-clock budget in seconds (default 600)"`
	PollIntervalSeconds *int   `json:"poll_interval_seconds,omitempty" jsonschema:"Initial seconds between polls (default 5)"`
}

// RegisterAnalytics registers the conversational analytics tools over the
// given gateway and poller. The tool names and payload shapes are the wire
// contract consumed by both the MCP surface and the agent loop.
func RegisterAnalytics(r *Registry, gw Gateway, poller CompletionPoller) error {
	if err := register(r, "start_conversation",
		"Start a new Genie conversation in a space with an initial question. Returns the created message; poll it until complete before reading results.",
		func(ctx context.Context, in StartConversationInput) (any, error) {
			if in.SpaceID == "" {
				return nil, errors.New("space_id is required")
			}
			if in.Content == "" {
				return nil, errors.New("content is required")
			}
			return gw.StartConversation(ctx, in.SpaceID, in.Content)
		}); err != nil {
		return err
	}

	if err := register(r, "create_message",
		"Send a follow-up question in an existing Genie conversation. Creates a new message each time; call at most once per turn.",
		func(ctx context.Context, in CreateMessageInput) (any, error) {
			if err := requireConversation(in.SpaceID, in.ConversationID); err != nil {
				return nil, err
			}
			if in.Content == "" {
				return nil, errors.New("content is required")
			}
			return gw.CreateMessage(ctx, in.SpaceID, in.ConversationID, in.Content)
		}); err != nil {
		return err
	}

	if err := register(r, "get_message",
		"Fetch the current state of a Genie message, including its status and attachments. Safe to repeat.",
		func(ctx context.Context, in MessageInput) (any, error) {
			if err := requireMessage(in.SpaceID, in.ConversationID, in.MessageID); err != nil {
				return nil, err
			}
			return gw.GetMessage(ctx, in.SpaceID, in.ConversationID, in.MessageID)
		}); err != nil {
		return err
	}

	if err := register(r, "get_message_attachment_query_result",
		"Fetch the stored SQL result of a query attachment on a completed message.",
		func(ctx context.Context, in AttachmentInput) (any, error) {
			if err := requireAttachment(in); err != nil {
				return nil, err
			}
			return gw.GetAttachmentQueryResult(ctx, in.SpaceID, in.ConversationID, in.MessageID, in.AttachmentID)
		}); err != nil {
		return err
	}

	if err := register(r, "execute_message_attachment_query",
		"Re-execute the SQL of a query attachment and return the fresh result. Use when the stored result has expired.",
		func(ctx context.Context, in AttachmentInput) (any, error) {
			if err := requireAttachment(in); err != nil {
				return nil, err
			}
			return gw.ExecuteAttachmentQuery(ctx, in.SpaceID, in.ConversationID, in.MessageID, in.AttachmentID)
		}); err != nil {
		return err
	}

	if err := register(r, "generate_download_full_query_result",
		"Request a full query result download for an attachment and return the transient statement handle.",
		func(ctx context.Context, in AttachmentInput) (any, error) {
			if err := requireAttachment(in); err != nil {
				return nil, err
			}
			return gw.GenerateDownload(ctx, in.SpaceID, in.ConversationID, in.MessageID, in.AttachmentID)
		}); err != nil {
		return err
	}

	if err := register(r, "get_space",
		"Fetch the title and description of a Genie space.",
		func(ctx context.Context, in SpaceInput) (any, error) {
			if in.SpaceID == "" {
				return nil, errors.New("space_id is required")
			}
			return gw.GetSpace(ctx, in.SpaceID)
		}); err != nil {
		return err
	}

	if err := register(r, "poll_message_until_complete",
		"Poll a Genie message until it reaches a terminal status or the timeout budget runs out. Returns the terminal message annotated with poll_count and elapsed_time, or a timeout payload.",
		func(ctx context.Context, in PollMessageInput) (any, error) {
			if err := requireMessage(in.SpaceID, in.ConversationID, in.MessageID); err != nil {
				return nil, err
			}

			// Default only the omitted bounds. An explicit zero is
			// meaningful: a zero timeout returns the timeout outcome
			// without polling, a zero interval is invalid input.
			opts := genie.PollOptions{}.Normalize()
			if in.TimeoutSeconds != nil {
				opts.Timeout = time.Duration(*in.TimeoutSeconds) * time.Second
			}
			if in.PollIntervalSeconds != nil {
				opts.Interval = time.Duration(*in.PollIntervalSeconds) * time.Second
			}

			msg, err := poller.Poll(ctx, in.SpaceID, in.ConversationID, in.MessageID, opts)
			if err != nil {
				// A timeout is an expected outcome with its own payload
				// shape, not a tool failure.
				var timeout *genie.TimeoutError
				if errors.As(err, &timeout) {
					return timeout, nil
				}
				return nil, err
			}
			return msg, nil
		}); err != nil {
		return err
	}

	return nil
}

func register[In any](r *Registry, name, description string, fn func(ctx context.Context, in In) (any, error)) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", name, err)
	}
	handler := func(ctx context.Context, args json.RawMessage) (any, error) {
		var in In
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		return fn(ctx, in)
	}
	return r.Register(Definition{Name: name, Description: description, InputSchema: schema}, handler)
}

func requireConversation(spaceID, conversationID string) error {
	if spaceID == "" {
		return errors.New("space_id is required")
	}
	if conversationID == "" {
		return errors.New("conversation_id is required")
	}
	return nil
}

func requireMessage(spaceID, conversationID, messageID string) error {
	if err := requireConversation(spaceID, conversationID); err != nil {
		return err
	}
	if messageID == "" {
		return errors.New("message_id is required")
	}
	return nil
}

func requireAttachment(in AttachmentInput) error {
	if err := requireMessage(in.SpaceID, in.ConversationID, in.MessageID); err != nil {
		return err
	}
	if in.AttachmentID == "" {
		return errors.New("attachment_id is required")
	}
	return nil
}
