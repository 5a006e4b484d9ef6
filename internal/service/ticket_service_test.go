package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

type ticketFixture struct {
	service    *TicketService
	tickets    *fakeTicketRepo
	users      *fakeUserRepo
	dispatcher *recordingDispatcher
	tenant     *domain.User
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	users := newFakeUserRepo()
	properties := newFakePropertyRepo()
	properties.landlords["prop-1"] = "landlord-1"
	dispatcher := newRecordingDispatcher()
	ticketRepo := newFakeTicketRepo()

	tenant := users.addUser(&domain.User{ID: "tenant-1", Role: domain.UserRoleTenant})

	svc := NewTicketService(TicketDependencies{
		TicketRepo:   ticketRepo,
		PropertyRepo: properties,
		HistoryRepo:  &fakeHistoryRepo{},
		Dispatcher:   dispatcher,
		Logger:       testLogger(),
	})
	return &ticketFixture{service: svc, tickets: ticketRepo, users: users, dispatcher: dispatcher, tenant: tenant}
}

func TestSubmitTicketStartsLifecycle(t *testing.T) {
	fix := newTicketFixture(t)

	ticket, err := fix.service.SubmitTicket(context.Background(), fix.tenant, "prop-1", "  water heater leaking  ")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingClassification, ticket.Status)
	assert.Equal(t, "water heater leaking", ticket.Description)
	assert.Nil(t, ticket.Category)

	created := fix.dispatcher.byType(events.EventTicketCreated)
	require.Len(t, created, 1)
	payload := created[0].Payload.(events.TicketCreatedPayload)
	assert.Equal(t, "tenant-1", payload.TenantID)
	assert.Equal(t, "prop-1", payload.PropertyID)
}

func TestSubmitTicketValidation(t *testing.T) {
	fix := newTicketFixture(t)

	_, err := fix.service.SubmitTicket(context.Background(), fix.tenant, "prop-1", "   ")
	require.Error(t, err)
	assert.Equal(t, "INVALID_ARGUMENT", apperrors.ToDomainError(err).Code)

	_, err = fix.service.SubmitTicket(context.Background(), fix.tenant, "prop-missing", "broken window")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

func TestSubmitTicketContractorDenied(t *testing.T) {
	fix := newTicketFixture(t)
	contractor := fix.users.addUser(&domain.User{ID: "c1", Role: domain.UserRoleContractor})

	_, err := fix.service.SubmitTicket(context.Background(), contractor, "prop-1", "broken window")
	require.Error(t, err)
	assert.Equal(t, "PERMISSION_DENIED", apperrors.ToDomainError(err).Code)
}

func TestListTicketsScopedByRole(t *testing.T) {
	fix := newTicketFixture(t)
	other := fix.users.addUser(&domain.User{ID: "tenant-2", Role: domain.UserRoleTenant})

	_, err := fix.service.SubmitTicket(context.Background(), fix.tenant, "prop-1", "broken window")
	require.NoError(t, err)
	_, err = fix.service.SubmitTicket(context.Background(), other, "prop-1", "stuck door")
	require.NoError(t, err)

	mine, err := fix.service.ListTickets(context.Background(), fix.tenant, nil, 20, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "tenant-1", mine[0].SubmittedBy)
}

func TestGetTicketForeignTenantDenied(t *testing.T) {
	fix := newTicketFixture(t)
	other := fix.users.addUser(&domain.User{ID: "tenant-2", Role: domain.UserRoleTenant})

	ticket, err := fix.service.SubmitTicket(context.Background(), fix.tenant, "prop-1", "broken window")
	require.NoError(t, err)

	_, err = fix.service.GetTicket(context.Background(), other, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, "PERMISSION_DENIED", apperrors.ToDomainError(err).Code)
}
