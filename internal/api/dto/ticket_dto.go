package dto

// SubmitTicketForm is the text part of the multipart ticket submission.
// Files arrive under the "attachments" field.
type SubmitTicketForm struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Category    string `json:"category" form:"category"`
	Priority    string `json:"priority" form:"priority"`
}

// AttachmentsField is the multipart field carrying ticket attachments.
const AttachmentsField = "attachments"

// ActionRequest carries the optional assignee of a lifecycle action.
type ActionRequest struct {
	AssigneeID string `json:"assignee_id" validate:"omitempty,uuid"`
}
