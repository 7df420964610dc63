package domain

import "time"

// MessageAuthorType identifies who wrote a ticket message.
type MessageAuthorType string

const (
	MessageAuthorUser  MessageAuthorType = "USER"
	MessageAuthorStaff MessageAuthorType = "STAFF"
)

// TicketMessage is a reply on a ticket's conversation thread. Messages are
// written in the same transaction as the ticket row they touch.
type TicketMessage struct {
	ID         string
	TicketID   string
	AuthorType MessageAuthorType
	AuthorID   string
	Body       string
	CreatedAt  time.Time
}
