package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atlasdesk/ticketd/internal/domain"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

func TestCreateTicketCommandValidate(t *testing.T) {
	cases := []struct {
		name    string
		cmd     CreateTicketCommand
		wantErr bool
	}{
		{"valid", CreateTicketCommand{Title: "a", Description: "b"}, false},
		{"valid with priority", CreateTicketCommand{Title: "a", Description: "b", Priority: domain.TicketPriorityLow}, false},
		{"blank title", CreateTicketCommand{Title: "  ", Description: "b"}, true},
		{"blank description", CreateTicketCommand{Title: "a", Description: "\t"}, true},
		{"unknown priority", CreateTicketCommand{Title: "a", Description: "b", Priority: "WHENEVER"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.wantErr {
				assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateStatusAuthorization(t *testing.T) {
	cases := []struct {
		name    string
		caller  domain.Caller
		status  domain.TicketStatus
		wantErr bool
	}{
		{"user cancels own path", endUser, domain.TicketStatusCancelled, false},
		{"user cannot resolve", endUser, domain.TicketStatusResolved, true},
		{"user cannot close", endUser, domain.TicketStatusClosed, true},
		{"agent resolves", agent, domain.TicketStatusResolved, false},
		{"admin closes", domain.Caller{ID: "admin-1", Role: domain.RoleAdmin}, domain.TicketStatusClosed, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &UpdateTicketStatusCommand{TicketID: "t-1", NewStatus: tc.status}
			err := cmd.Authorize(tc.caller)
			if tc.wantErr {
				assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStaffOnlyCommands(t *testing.T) {
	assignee := "agent-2"
	staffOnly := []struct {
		name string
		cmd  interface{ Authorize(domain.Caller) error }
	}{
		{"change priority", &ChangeTicketPriorityCommand{TicketID: "t-1", NewPriority: domain.TicketPriorityHigh}},
		{"assign", &AssignTicketCommand{TicketID: "t-1", AssigneeID: &assignee}},
	}
	for _, tc := range staffOnly {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, apperrors.IsCode(tc.cmd.Authorize(endUser), "FORBIDDEN"))
			assert.NoError(t, tc.cmd.Authorize(agent))
		})
	}
}

func TestAssignCommandValidate(t *testing.T) {
	empty := ""
	set := "agent-2"

	assert.Error(t, (&AssignTicketCommand{TicketID: "", AssigneeID: &set}).Validate())
	assert.Error(t, (&AssignTicketCommand{TicketID: "t-1", AssigneeID: &empty}).Validate())
	assert.NoError(t, (&AssignTicketCommand{TicketID: "t-1", AssigneeID: &set}).Validate())
	assert.NoError(t, (&AssignTicketCommand{TicketID: "t-1", AssigneeID: nil}).Validate(), "nil assignee means unassign")
}

func TestAddMessageCommandValidate(t *testing.T) {
	assert.Error(t, (&AddTicketMessageCommand{TicketID: "t-1", Body: "   "}).Validate())
	assert.Error(t, (&AddTicketMessageCommand{TicketID: "", Body: "hi"}).Validate())
	assert.NoError(t, (&AddTicketMessageCommand{TicketID: "t-1", Body: "hi"}).Validate())
}

func TestCommandClassesSplitSubmitFromWrite(t *testing.T) {
	assert.Equal(t, ClassTicketSubmit, (&CreateTicketCommand{}).Class())
	assert.Equal(t, ClassTicketWrite, (&UpdateTicketStatusCommand{}).Class())
	assert.Equal(t, ClassTicketWrite, (&ChangeTicketPriorityCommand{}).Class())
	assert.Equal(t, ClassTicketWrite, (&AssignTicketCommand{}).Class())
	assert.Equal(t, ClassTicketWrite, (&AddTicketMessageCommand{}).Class())
}
