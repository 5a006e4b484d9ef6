package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
)

type notificationFixture struct {
	service       *NotificationService
	notifications *fakeNotificationRepo
	users         *fakeUserRepo
	dispatcher    *recordingDispatcher
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	notifications := newFakeNotificationRepo()
	users := newFakeUserRepo()
	dispatcher := newRecordingDispatcher()

	svc := NewNotificationService(NotificationDependencies{
		NotificationRepo: notifications,
		UserRepo:         users,
		Dispatcher:       dispatcher,
		Logger:           testLogger(),
	})
	svc.RegisterHandlers()
	return &notificationFixture{
		service:       svc,
		notifications: notifications,
		users:         users,
		dispatcher:    dispatcher,
	}
}

func TestClassifiedNotifiesTenantAndLandlord(t *testing.T) {
	fix := newNotificationFixture(t)

	err := fix.dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketClassified,
		TicketID: "ticket-1",
		Payload: events.TicketClassifiedPayload{
			Category:   domain.CategoryPlumbing,
			Urgency:    2,
			TenantID:   "tenant-1",
			LandlordID: "landlord-1",
		},
	})
	require.NoError(t, err)

	tenant := fix.notifications.forUser("tenant-1")
	require.Len(t, tenant, 1)
	assert.Equal(t, domain.NotificationTypeClassified, tenant[0].Type)

	landlord := fix.notifications.forUser("landlord-1")
	require.Len(t, landlord, 1)
}

func TestHighUrgencyAddsLandlordAlert(t *testing.T) {
	fix := newNotificationFixture(t)

	err := fix.dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketClassified,
		TicketID: "ticket-1",
		Payload: events.TicketClassifiedPayload{
			Category:   domain.CategoryElectrical,
			Urgency:    5,
			TenantID:   "tenant-1",
			LandlordID: "landlord-1",
		},
	})
	require.NoError(t, err)

	landlord := fix.notifications.forUser("landlord-1")
	require.Len(t, landlord, 2)
	types := []domain.NotificationType{landlord[0].Type, landlord[1].Type}
	assert.Contains(t, types, domain.NotificationTypeHighUrgency)
}

func TestAssignmentNotifiesContractor(t *testing.T) {
	fix := newNotificationFixture(t)

	err := fix.dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: "ticket-1",
		Payload: events.TicketAssignedPayload{
			ContractorID: "c1",
			Category:     domain.CategoryHVAC,
			Fallback:     true,
		},
	})
	require.NoError(t, err)

	contractor := fix.notifications.forUser("c1")
	require.Len(t, contractor, 1)
	assert.Equal(t, domain.NotificationTypeAssignment, contractor[0].Type)
	assert.Equal(t, true, contractor[0].Data["fallback"])
}

func TestEscalationsGroupedPerLandlordAndAdmin(t *testing.T) {
	fix := newNotificationFixture(t)
	fix.users.addUser(&domain.User{ID: "admin-1", Role: domain.UserRoleAdmin})

	err := fix.dispatcher.Publish(context.Background(), events.Event{
		Type: events.EventTicketsEscalated,
		Payload: events.TicketsEscalatedPayload{
			Escalations: []events.EscalatedTicket{
				{TicketID: "t-1", LandlordID: "landlord-1", Urgency: 5, ElapsedMinutes: 45},
				{TicketID: "t-2", LandlordID: "landlord-1", Urgency: 4, ElapsedMinutes: 70},
				{TicketID: "t-3", LandlordID: "landlord-2", Urgency: 3, ElapsedMinutes: 200},
			},
		},
	})
	require.NoError(t, err)

	first := fix.notifications.forUser("landlord-1")
	require.Len(t, first, 1)
	assert.Equal(t, domain.NotificationTypeEscalation, first[0].Type)
	assert.ElementsMatch(t, []string{"t-1", "t-2"}, first[0].Data["tickets"])

	second := fix.notifications.forUser("landlord-2")
	require.Len(t, second, 1)

	admin := fix.notifications.forUser("admin-1")
	require.Len(t, admin, 1)
	assert.ElementsMatch(t, []string{"t-1", "t-2", "t-3"}, admin[0].Data["tickets"])
}

func TestManualAssignmentNeededNotifiesLandlord(t *testing.T) {
	fix := newNotificationFixture(t)

	err := fix.dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventManualAssignmentNeeded,
		TicketID: "ticket-1",
		Payload: events.ManualAssignmentNeededPayload{
			LandlordID: "landlord-1",
			Reason:     "no matching contractors available",
		},
	})
	require.NoError(t, err)

	landlord := fix.notifications.forUser("landlord-1")
	require.Len(t, landlord, 1)
	assert.Equal(t, domain.NotificationTypeManualAssignmentNeeded, landlord[0].Type)
	assert.Contains(t, landlord[0].Message, "no matching contractors available")
}

func TestCompletionNotifiesTenantAndLandlord(t *testing.T) {
	fix := newNotificationFixture(t)

	err := fix.dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketCompleted,
		TicketID: "ticket-1",
		Payload: events.TicketCompletedPayload{
			ContractorID: "c1",
			TenantID:     "tenant-1",
			LandlordID:   "landlord-1",
		},
	})
	require.NoError(t, err)

	assert.Len(t, fix.notifications.forUser("tenant-1"), 1)
	assert.Len(t, fix.notifications.forUser("landlord-1"), 1)
}
