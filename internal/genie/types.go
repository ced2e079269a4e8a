// Package genie is a typed client for the Databricks Genie conversational
// analytics API: conversations, messages, query attachments and the polling
// loop that drives a message to a terminal status.
package genie

// MessageStatus is the remote-side lifecycle status of a conversation message.
// The wire value is an open-ended string; unrecognized values map to
// StatusUnknown instead of silently passing through.
type MessageStatus string

const (
	StatusSubmitted          MessageStatus = "SUBMITTED"
	StatusExecuting          MessageStatus = "EXECUTING"
	StatusCompleted          MessageStatus = "COMPLETED"
	StatusFailed             MessageStatus = "FAILED"
	StatusQueryResultExpired MessageStatus = "QUERY_RESULT_EXPIRED"
	StatusCancelled          MessageStatus = "CANCELLED"
	StatusUnknown            MessageStatus = "UNKNOWN"
)

// ParseStatus maps a wire status string onto the closed status set.
func ParseStatus(s string) MessageStatus {
	switch MessageStatus(s) {
	case StatusSubmitted, StatusExecuting, StatusCompleted,
		StatusFailed, StatusQueryResultExpired, StatusCancelled:
		return MessageStatus(s)
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further status transition can occur.
func (s MessageStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusQueryResultExpired, StatusCancelled:
		return true
	}
	return false
}

// Message is one turn in a Genie conversation. Status is only ever written by
// the remote service; locally it is observed through GetMessage.
type Message struct {
	MessageID      string        `json:"message_id"`
	ConversationID string        `json:"conversation_id"`
	SpaceID        string        `json:"space_id,omitempty"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// Attachment is a query artifact attached to a completed message. The tabular
// result is not inlined; it is fetched separately per attachment.
type Attachment struct {
	AttachmentID string           `json:"attachment_id"`
	Query        *AttachmentQuery `json:"query,omitempty"`
	Text         *AttachmentText  `json:"text,omitempty"`
}

// AttachmentQuery describes the SQL Genie generated for an attachment.
type AttachmentQuery struct {
	Query       string `json:"query"`
	Description string `json:"description,omitempty"`
}

// AttachmentText is a plain-text attachment body.
type AttachmentText struct {
	Content string `json:"content"`
}

// Space describes a Genie space.
type Space struct {
	SpaceID     string `json:"space_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// QueryResult wraps the statement response returned for a query attachment.
type QueryResult struct {
	StatementResponse *StatementResponse `json:"statement_response,omitempty"`
}

// StatementResponse is the SQL statement execution result for an attachment.
type StatementResponse struct {
	StatementID string           `json:"statement_id,omitempty"`
	Status      *StatementStatus `json:"status,omitempty"`
	Manifest    *ResultManifest  `json:"manifest,omitempty"`
	Result      *ResultData      `json:"result,omitempty"`
}

// StatementStatus carries the execution state of a statement.
type StatementStatus struct {
	State string `json:"state,omitempty"`
}

// ResultManifest describes the shape of a statement result.
type ResultManifest struct {
	Schema        *ResultSchema `json:"schema,omitempty"`
	TotalRowCount int64         `json:"total_row_count,omitempty"`
}

// ResultSchema lists the result columns in position order.
type ResultSchema struct {
	Columns []ColumnInfo `json:"columns,omitempty"`
}

// ColumnInfo describes a single result column.
type ColumnInfo struct {
	Name     string `json:"name"`
	TypeText string `json:"type_text,omitempty"`
	Position int    `json:"position"`
}

// ResultData holds the row data of a statement result.
type ResultData struct {
	RowCount  int64      `json:"row_count,omitempty"`
	DataArray [][]string `json:"data_array,omitempty"`
}

// DownloadResult is the handle produced by generating a full query result
// download.
type DownloadResult struct {
	TransientStatementID string `json:"transient_statement_id"`
	Status               string `json:"status,omitempty"`
}
