package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propagentic/maintenance-service/internal/classify"
	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
	"github.com/propagentic/maintenance-service/internal/observability"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

type scriptedClassifier struct {
	calls   int
	results []func() (*classify.Result, error)
}

func (c *scriptedClassifier) Classify(context.Context, string) (*classify.Result, error) {
	step := c.calls
	c.calls++
	if step >= len(c.results) {
		step = len(c.results) - 1
	}
	return c.results[step]()
}

func classifierReturning(category domain.TicketCategory, urgency int) *scriptedClassifier {
	return &scriptedClassifier{results: []func() (*classify.Result, error){
		func() (*classify.Result, error) {
			return &classify.Result{Category: category, Urgency: urgency}, nil
		},
	}}
}

func classifierFailing(err error) *scriptedClassifier {
	return &scriptedClassifier{results: []func() (*classify.Result, error){
		func() (*classify.Result, error) { return nil, err },
	}}
}

func newClassificationFixture(t *testing.T, classifier classify.Classifier, tickets ...*domain.Ticket) (*ClassificationService, *fakeTicketRepo, *recordingDispatcher) {
	t.Helper()
	properties := newFakePropertyRepo()
	properties.landlords["prop-1"] = "landlord-1"
	dispatcher := newRecordingDispatcher()
	ticketRepo := newFakeTicketRepo(tickets...)

	svc := NewClassificationService(ClassificationDependencies{
		TicketRepo:   ticketRepo,
		PropertyRepo: properties,
		HistoryRepo:  &fakeHistoryRepo{},
		Classifier:   classifier,
		Dispatcher:   dispatcher,
		Metrics:      observability.NewMetrics(),
		Logger:       testLogger(),
	})
	svc.backoff = 0
	return svc, ticketRepo, dispatcher
}

func pendingTicket(id string) *domain.Ticket {
	return &domain.Ticket{
		ID:          id,
		Description: "no heat in the bedroom",
		Status:      domain.TicketStatusPendingClassification,
		PropertyID:  "prop-1",
		SubmittedBy: "tenant-1",
	}
}

func TestClassifyTicketAdvancesStatus(t *testing.T) {
	svc, tickets, dispatcher := newClassificationFixture(t,
		classifierReturning(domain.CategoryHVAC, 4), pendingTicket("ticket-1"))

	require.NoError(t, svc.ClassifyTicket(context.Background(), "ticket-1"))

	stored, err := tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReadyToDispatch, stored.Status)
	require.NotNil(t, stored.Category)
	assert.Equal(t, domain.CategoryHVAC, *stored.Category)
	assert.Equal(t, 4, stored.UrgencyValue())
	assert.NotNil(t, stored.ClassifiedAt)

	classified := dispatcher.byType(events.EventTicketClassified)
	require.Len(t, classified, 1)
	payload := classified[0].Payload.(events.TicketClassifiedPayload)
	assert.Equal(t, "landlord-1", payload.LandlordID)
	assert.Equal(t, "tenant-1", payload.TenantID)
}

func TestClassifyTicketClampsUrgency(t *testing.T) {
	svc, tickets, _ := newClassificationFixture(t,
		classifierReturning(domain.CategoryPlumbing, 9), pendingTicket("ticket-1"))

	require.NoError(t, svc.ClassifyTicket(context.Background(), "ticket-1"))

	stored, err := tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.UrgencyValue())
}

func TestClassifyTicketFailureKeepsPendingStatus(t *testing.T) {
	svc, tickets, dispatcher := newClassificationFixture(t,
		classifierFailing(apperrors.NewClassificationError(errors.New("provider down"))),
		pendingTicket("ticket-1"))

	err := svc.ClassifyTicket(context.Background(), "ticket-1")
	require.Error(t, err)

	stored, getErr := tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.TicketStatusPendingClassification, stored.Status)
	assert.Nil(t, stored.Category)
	assert.Empty(t, dispatcher.byType(events.EventTicketClassified))
}

func TestClassifyTicketRetriesTransientFailures(t *testing.T) {
	classifier := &scriptedClassifier{results: []func() (*classify.Result, error){
		func() (*classify.Result, error) {
			return nil, apperrors.NewClassificationError(errors.New("timeout"))
		},
		func() (*classify.Result, error) {
			return &classify.Result{Category: domain.CategoryAppliance, Urgency: 2}, nil
		},
	}}
	svc, tickets, _ := newClassificationFixture(t, classifier, pendingTicket("ticket-1"))

	require.NoError(t, svc.ClassifyTicket(context.Background(), "ticket-1"))
	assert.Equal(t, 2, classifier.calls)

	stored, err := tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReadyToDispatch, stored.Status)
}

func TestClassifyTicketDoesNotRetryNonRetryable(t *testing.T) {
	classifier := classifierFailing(apperrors.NewInternalError(errors.New("bad config")))
	svc, _, _ := newClassificationFixture(t, classifier, pendingTicket("ticket-1"))

	require.Error(t, svc.ClassifyTicket(context.Background(), "ticket-1"))
	assert.Equal(t, 1, classifier.calls)
}

func TestClassifyTicketSkipsAlreadyClassified(t *testing.T) {
	ticket := pendingTicket("ticket-1")
	ticket.Status = domain.TicketStatusReadyToDispatch
	classifier := classifierReturning(domain.CategoryGeneral, 1)
	svc, _, dispatcher := newClassificationFixture(t, classifier, ticket)

	require.NoError(t, svc.ClassifyTicket(context.Background(), "ticket-1"))
	assert.Equal(t, 0, classifier.calls)
	assert.Empty(t, dispatcher.byType(events.EventTicketClassified))
}
