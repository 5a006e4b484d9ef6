package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
	"github.com/propagentic/maintenance-service/internal/observability"
	"github.com/propagentic/maintenance-service/internal/repository"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

func expectState(status domain.TicketStatus) repository.ExpectedTicketState {
	return repository.ExpectedTicketState{Status: status}
}

type assignmentFixture struct {
	service    *AssignmentService
	tickets    *fakeTicketRepo
	users      *fakeUserRepo
	properties *fakePropertyRepo
	history    *fakeHistoryRepo
	dispatcher *recordingDispatcher
	landlord   *domain.User
	tenant     *domain.User
}

func newAssignmentFixture(t *testing.T, tickets ...*domain.Ticket) *assignmentFixture {
	t.Helper()
	users := newFakeUserRepo()
	properties := newFakePropertyRepo()
	history := &fakeHistoryRepo{}
	dispatcher := newRecordingDispatcher()
	ticketRepo := newFakeTicketRepo(tickets...)

	landlord := users.addUser(&domain.User{ID: "landlord-1", Name: "Lena", Role: domain.UserRoleLandlord})
	tenant := users.addUser(&domain.User{ID: "tenant-1", Name: "Tom", Role: domain.UserRoleTenant})
	properties.landlords["prop-1"] = landlord.ID

	svc := NewAssignmentService(AssignmentDependencies{
		TicketRepo:   ticketRepo,
		UserRepo:     users,
		PropertyRepo: properties,
		HistoryRepo:  history,
		Dispatcher:   dispatcher,
		Metrics:      observability.NewMetrics(),
		Logger:       testLogger(),
	})
	return &assignmentFixture{
		service:    svc,
		tickets:    ticketRepo,
		users:      users,
		properties: properties,
		history:    history,
		dispatcher: dispatcher,
		landlord:   landlord,
		tenant:     tenant,
	}
}

func pendingAcceptanceTicket(assignee string) *domain.Ticket {
	category := domain.CategoryPlumbing
	urgency := 3
	assigned := assignee
	return &domain.Ticket{
		ID:          "ticket-1",
		Description: "leaking pipe under the sink",
		Category:    &category,
		Urgency:     &urgency,
		Status:      domain.TicketStatusPendingAcceptance,
		PropertyID:  "prop-1",
		SubmittedBy: "tenant-1",
		AssignedTo:  &assigned,
	}
}

func contractorUser(id string) *domain.User {
	return &domain.User{ID: id, Role: domain.UserRoleContractor}
}

func TestAssignTicketMovesToPendingAcceptance(t *testing.T) {
	category := domain.CategoryPlumbing
	fix := newAssignmentFixture(t, &domain.Ticket{
		ID:          "ticket-1",
		Category:    &category,
		Status:      domain.TicketStatusReadyToAssign,
		PropertyID:  "prop-1",
		SubmittedBy: "tenant-1",
	})
	fix.users.addContractor(&domain.Contractor{ID: "c1", Skills: []domain.TicketCategory{category}, Available: true})

	ticket, err := fix.service.AssignTicket(context.Background(), fix.landlord, "ticket-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingAcceptance, ticket.Status)
	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, "c1", *ticket.AssignedTo)
	assert.NotNil(t, ticket.AssignedAt)

	assigned := fix.dispatcher.byType(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	payload := assigned[0].Payload.(events.TicketAssignedPayload)
	assert.Equal(t, "c1", payload.ContractorID)
	assert.False(t, payload.Fallback)
}

func TestAssignTicketRejectsForeignLandlord(t *testing.T) {
	category := domain.CategoryPlumbing
	fix := newAssignmentFixture(t, &domain.Ticket{
		ID:          "ticket-1",
		Category:    &category,
		Status:      domain.TicketStatusReadyToAssign,
		PropertyID:  "prop-1",
		SubmittedBy: "tenant-1",
	})
	other := fix.users.addUser(&domain.User{ID: "landlord-2", Role: domain.UserRoleLandlord})

	_, err := fix.service.AssignTicket(context.Background(), other, "ticket-1", "c1")
	require.Error(t, err)
	assert.Equal(t, "PERMISSION_DENIED", apperrors.ToDomainError(err).Code)
}

func TestAcceptTicket(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c1"))
	fix.users.addContractor(&domain.Contractor{ID: "c1", Available: true})

	ticket, err := fix.service.AcceptTicket(context.Background(), contractorUser("c1"), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
	assert.NotNil(t, ticket.AcceptedAt)

	accepted := fix.dispatcher.byType(events.EventTicketAccepted)
	require.Len(t, accepted, 1)
	payload := accepted[0].Payload.(events.TicketAcceptedPayload)
	assert.Equal(t, "tenant-1", payload.TenantID)
	assert.Equal(t, "landlord-1", payload.LandlordID)
}

func TestAcceptTicketByWrongContractor(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c1"))

	_, err := fix.service.AcceptTicket(context.Background(), contractorUser("c2"), "ticket-1")
	require.Error(t, err)
	assert.Equal(t, "PERMISSION_DENIED", apperrors.ToDomainError(err).Code)
}

func TestAcceptTicketTwiceFailsPrecondition(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c1"))

	_, err := fix.service.AcceptTicket(context.Background(), contractorUser("c1"), "ticket-1")
	require.NoError(t, err)

	_, err = fix.service.AcceptTicket(context.Background(), contractorUser("c1"), "ticket-1")
	require.Error(t, err)
	assert.Equal(t, "FAILED_PRECONDITION", apperrors.ToDomainError(err).Code)
}

func TestRejectTicketFallsBackToNextContractor(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c1"))
	fix.users.addContractor(&domain.Contractor{ID: "c1", Skills: []domain.TicketCategory{domain.CategoryPlumbing}, Available: true, Rating: 4.9})
	fix.users.addContractor(&domain.Contractor{ID: "c2", Skills: []domain.TicketCategory{domain.CategoryPlumbing}, Available: true, Rating: 4.5})

	outcome, err := fix.service.RejectTicket(context.Background(), contractorUser("c1"), "ticket-1", "busy this week")
	require.NoError(t, err)
	assert.Equal(t, "reassigned", outcome.Status)
	require.NotNil(t, outcome.FallbackContractor)
	assert.Equal(t, "c2", *outcome.FallbackContractor)

	stored, err := fix.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingAcceptance, stored.Status)
	require.NotNil(t, stored.AssignedTo)
	assert.Equal(t, "c2", *stored.AssignedTo)
	assert.Equal(t, 1, stored.Meta.RejectionCount)
	assert.Equal(t, []string{"c1"}, stored.Meta.PreviouslyRejectedBy)
	assert.NotNil(t, stored.Meta.FallbackAssignedAt)

	assigned := fix.dispatcher.byType(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	assert.True(t, assigned[0].Payload.(events.TicketAssignedPayload).Fallback)
}

func TestRejectTicketNeverReassignsPriorRejecter(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c2"))
	fix.users.addContractor(&domain.Contractor{ID: "c1", Skills: []domain.TicketCategory{domain.CategoryPlumbing}, Available: true, Rating: 5.0})
	fix.users.addContractor(&domain.Contractor{ID: "c2", Skills: []domain.TicketCategory{domain.CategoryPlumbing}, Available: true, Rating: 4.0})

	// c1 already rejected once; c2 rejecting must not route back to c1
	// even though c1 outranks everyone.
	ticket, err := fix.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	ticket.Meta.RejectionCount = 1
	ticket.Meta.PreviouslyRejectedBy = []string{"c1"}
	require.NoError(t, fix.tickets.UpdateConditional(context.Background(), ticket, expectState(domain.TicketStatusPendingAcceptance)))

	outcome, err := fix.service.RejectTicket(context.Background(), contractorUser("c2"), "ticket-1", "wrong trade")
	require.NoError(t, err)
	assert.Equal(t, "needs_manual_assignment", outcome.Status)

	stored, err := fix.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNeedsManualAssignment, stored.Status)
	assert.Nil(t, stored.AssignedTo)
	assert.ElementsMatch(t, []string{"c1", "c2"}, stored.Meta.PreviouslyRejectedBy)
}

func TestRejectTicketCapForcesManualAssignment(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c3"))
	// Plenty of eligible contractors remain, but the cap wins.
	fix.users.addContractor(&domain.Contractor{ID: "c4", Skills: []domain.TicketCategory{domain.CategoryPlumbing}, Available: true, Rating: 5.0})

	ticket, err := fix.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	ticket.Meta.RejectionCount = 2
	ticket.Meta.PreviouslyRejectedBy = []string{"c1", "c2"}
	require.NoError(t, fix.tickets.UpdateConditional(context.Background(), ticket, expectState(domain.TicketStatusPendingAcceptance)))

	outcome, err := fix.service.RejectTicket(context.Background(), contractorUser("c3"), "ticket-1", "overloaded")
	require.NoError(t, err)
	assert.Equal(t, "needs_manual_assignment", outcome.Status)
	assert.Nil(t, outcome.FallbackContractor)

	stored, err := fix.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNeedsManualAssignment, stored.Status)
	assert.Equal(t, 3, stored.Meta.RejectionCount)
	assert.NotNil(t, stored.Meta.ManualAssignmentNeededAt)

	manual := fix.dispatcher.byType(events.EventManualAssignmentNeeded)
	require.Len(t, manual, 1)
	assert.Equal(t, "landlord-1", manual[0].Payload.(events.ManualAssignmentNeededPayload).LandlordID)
}

func TestRejectTicketRecordsHistory(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c1"))

	_, err := fix.service.RejectTicket(context.Background(), contractorUser("c1"), "ticket-1", "on vacation")
	require.NoError(t, err)

	rejections := fix.history.byChangeType(domain.ChangeTypeRejection)
	require.Len(t, rejections, 1)
	assert.Equal(t, "on vacation", rejections[0].NewValue["reason"])
}

func TestStartAndCompleteTicket(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c1"))

	_, err := fix.service.AcceptTicket(context.Background(), contractorUser("c1"), "ticket-1")
	require.NoError(t, err)

	ticket, err := fix.service.StartWork(context.Background(), contractorUser("c1"), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)

	ticket, err = fix.service.CompleteTicket(context.Background(), contractorUser("c1"), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCompleted, ticket.Status)
	assert.NotNil(t, ticket.CompletedAt)

	completed := fix.dispatcher.byType(events.EventTicketCompleted)
	require.Len(t, completed, 1)
}

func TestCompleteBeforeStartFails(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c1"))

	_, err := fix.service.AcceptTicket(context.Background(), contractorUser("c1"), "ticket-1")
	require.NoError(t, err)

	_, err = fix.service.CompleteTicket(context.Background(), contractorUser("c1"), "ticket-1")
	require.Error(t, err)
	assert.Equal(t, "FAILED_PRECONDITION", apperrors.ToDomainError(err).Code)
}

func TestCancelTicketByTenant(t *testing.T) {
	fix := newAssignmentFixture(t, pendingAcceptanceTicket("c1"))

	ticket, err := fix.service.CancelTicket(context.Background(), fix.tenant, "ticket-1", "resolved it myself")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, ticket.Status)
	assert.Nil(t, ticket.AssignedTo)
}

func TestCancelCompletedTicketFails(t *testing.T) {
	ticket := pendingAcceptanceTicket("c1")
	ticket.Status = domain.TicketStatusCompleted
	fix := newAssignmentFixture(t, ticket)

	_, err := fix.service.CancelTicket(context.Background(), fix.tenant, "ticket-1", "")
	require.Error(t, err)
	assert.Equal(t, "FAILED_PRECONDITION", apperrors.ToDomainError(err).Code)
}
