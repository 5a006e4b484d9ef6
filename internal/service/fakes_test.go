package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
	"github.com/propagentic/maintenance-service/internal/repository"
)

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo(tickets ...*domain.Ticket) *fakeTicketRepo {
	repo := &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
	for _, ticket := range tickets {
		copied := *ticket
		repo.tickets[ticket.ID] = &copied
	}
	return repo
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if filter.SubmittedBy != nil && stored.SubmittedBy != *filter.SubmittedBy {
			continue
		}
		if filter.AssignedTo != nil && (stored.AssignedTo == nil || *stored.AssignedTo != *filter.AssignedTo) {
			continue
		}
		result = append(result, *stored)
	}
	return result, nil
}

func (r *fakeTicketRepo) UpdateConditional(_ context.Context, ticket *domain.Ticket, expect repository.ExpectedTicketState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok || stored.Status != expect.Status {
		return pgx.ErrNoRows
	}
	if expect.CheckAssignee {
		if (stored.AssignedTo == nil) != (expect.AssignedTo == nil) {
			return pgx.ErrNoRows
		}
		if stored.AssignedTo != nil && *stored.AssignedTo != *expect.AssignedTo {
			return pgx.ErrNoRows
		}
	}
	if expect.RejectionCount != nil && stored.Meta.RejectionCount != *expect.RejectionCount {
		return pgx.ErrNoRows
	}
	copied := *ticket
	copied.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) ListEscalationCandidates(_ context.Context, statuses []domain.TicketStatus, minUrgency int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	statusSet := make(map[domain.TicketStatus]struct{}, len(statuses))
	for _, status := range statuses {
		statusSet[status] = struct{}{}
	}
	var result []domain.Ticket
	for _, stored := range r.tickets {
		if stored.Escalated || stored.UrgencyValue() < minUrgency {
			continue
		}
		if _, ok := statusSet[stored.Status]; !ok {
			continue
		}
		result = append(result, *stored)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeTicketRepo) CommitEscalations(_ context.Context, updates []repository.EscalationUpdate) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flagged := 0
	now := time.Now()
	for _, update := range updates {
		stored, ok := r.tickets[update.TicketID]
		if !ok || stored.Escalated {
			continue
		}
		reason := update.Reason
		stored.Escalated = true
		stored.Meta.EscalationReason = &reason
		stored.Meta.EscalatedAt = &now
		flagged++
	}
	return flagged, nil
}

type fakeUserRepo struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	contractors map[string]*domain.Contractor
	rolodex     map[string][]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:       make(map[string]*domain.User),
		contractors: make(map[string]*domain.Contractor),
		rolodex:     make(map[string][]string),
	}
}

func (r *fakeUserRepo) addUser(user *domain.User) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.users[user.ID] = user
	return user
}

func (r *fakeUserRepo) addContractor(contractor *domain.Contractor) *domain.Contractor {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contractors[contractor.ID] = contractor
	r.users[contractor.ID] = &domain.User{
		ID:   contractor.ID,
		Name: contractor.Name,
		Role: domain.UserRoleContractor,
	}
	return contractor
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.addUser(user)
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListAdmins(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, user := range r.users {
		if user.Role == domain.UserRoleAdmin {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeUserRepo) FindContractors(_ context.Context, category domain.TicketCategory, excluding []string, availableOnly bool, limit int) ([]domain.Contractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	excluded := make(map[string]struct{}, len(excluding))
	for _, id := range excluding {
		excluded[id] = struct{}{}
	}
	var result []domain.Contractor
	for _, contractor := range r.contractors {
		if !contractor.HasSkill(category) {
			continue
		}
		if availableOnly && !contractor.Available {
			continue
		}
		if _, ok := excluded[contractor.ID]; ok {
			continue
		}
		result = append(result, *contractor)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Rating != result[j].Rating {
			return result[i].Rating > result[j].Rating
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeUserRepo) ListRolodex(_ context.Context, landlordID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rolodex[landlordID], nil
}

type fakePropertyRepo struct {
	landlords map[string]string
}

func newFakePropertyRepo() *fakePropertyRepo {
	return &fakePropertyRepo{landlords: make(map[string]string)}
}

func (r *fakePropertyRepo) Create(_ context.Context, property *domain.Property) error {
	if property.ID == "" {
		property.ID = uuid.NewString()
	}
	r.landlords[property.ID] = property.LandlordID
	return nil
}

func (r *fakePropertyRepo) GetByID(_ context.Context, id string) (*domain.Property, error) {
	landlordID, ok := r.landlords[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &domain.Property{ID: id, LandlordID: landlordID}, nil
}

func (r *fakePropertyRepo) ResolveLandlord(_ context.Context, propertyID string) (string, error) {
	landlordID, ok := r.landlords[propertyID]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return landlordID, nil
}

type fakeHistoryRepo struct {
	mu          sync.Mutex
	entries     []domain.TicketHistory
	escalations []domain.EscalationLogEntry
}

func (r *fakeHistoryRepo) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history.ID = uuid.NewString()
	history.CreatedAt = time.Now()
	r.entries = append(r.entries, *history)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r *fakeHistoryRepo) CreateEscalationEntry(_ context.Context, entry *domain.EscalationLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.escalations = append(r.escalations, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListEscalations(_ context.Context, ticketID string) ([]domain.EscalationLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.EscalationLogEntry
	for _, entry := range r.escalations {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r *fakeHistoryRepo) byChangeType(changeType domain.HistoryChangeType) []domain.TicketHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.ChangeType == changeType {
			result = append(result, entry)
		}
	}
	return result
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []domain.Notification
	records       map[string]*domain.DeliveryRecord
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{records: make(map[string]*domain.DeliveryRecord)}
}

func (r *fakeNotificationRepo) Create(_ context.Context, notification *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	notification.ID = uuid.NewString()
	notification.CreatedAt = time.Now()
	r.notifications = append(r.notifications, *notification)
	return nil
}

func (r *fakeNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == id {
			copied := r.notifications[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeNotificationRepo) ListByUser(_ context.Context, userID string, _, _ int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Notification
	for _, notification := range r.notifications {
		if notification.UserID == userID {
			result = append(result, notification)
		}
	}
	return result, nil
}

func (r *fakeNotificationRepo) CreateDeliveryRecord(_ context.Context, record *domain.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	copied := *record
	r.records[record.NotificationID] = &copied
	return nil
}

func (r *fakeNotificationRepo) UpdateDeliveryRecord(_ context.Context, record *domain.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.NotificationID]; !ok {
		return pgx.ErrNoRows
	}
	record.UpdatedAt = time.Now()
	copied := *record
	r.records[record.NotificationID] = &copied
	return nil
}

func (r *fakeNotificationRepo) GetDeliveryRecord(_ context.Context, notificationID string) (*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[notificationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (r *fakeNotificationRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.Notification
	var deleted int64
	for _, notification := range r.notifications {
		if notification.CreatedAt.Before(cutoff) {
			deleted++
			delete(r.records, notification.ID)
			continue
		}
		kept = append(kept, notification)
	}
	r.notifications = kept
	return deleted, nil
}

func (r *fakeNotificationRepo) PurgeSoftDeleted(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.Notification
	var purged int64
	for _, notification := range r.notifications {
		if notification.DeletedAt != nil && notification.DeletedAt.Before(cutoff) {
			purged++
			delete(r.records, notification.ID)
			continue
		}
		kept = append(kept, notification)
	}
	r.notifications = kept
	return purged, nil
}

func (r *fakeNotificationRepo) ArchiveRead(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var archived int64
	for i := range r.notifications {
		if r.notifications[i].Read && !r.notifications[i].Archived && r.notifications[i].CreatedAt.Before(cutoff) {
			r.notifications[i].Archived = true
			archived++
		}
	}
	return archived, nil
}

func (r *fakeNotificationRepo) forUser(userID string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Notification
	for _, notification := range r.notifications {
		if notification.UserID == userID {
			result = append(result, notification)
		}
	}
	return result
}

type fakePushTokenRepo struct {
	mu     sync.Mutex
	tokens map[string][]string
}

func newFakePushTokenRepo() *fakePushTokenRepo {
	return &fakePushTokenRepo{tokens: make(map[string][]string)}
}

func (r *fakePushTokenRepo) Add(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tokens[userID] {
		if existing == token {
			return nil
		}
	}
	r.tokens[userID] = append(r.tokens[userID], token)
	return nil
}

func (r *fakePushTokenRepo) List(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.tokens[userID]...), nil
}

func (r *fakePushTokenRepo) Remove(_ context.Context, userID string, tokens ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		removed[token] = struct{}{}
	}
	var kept []string
	for _, token := range r.tokens[userID] {
		if _, ok := removed[token]; !ok {
			kept = append(kept, token)
		}
	}
	r.tokens[userID] = kept
	return nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	events   []events.Event
	handlers map[events.EventType][]events.EventHandler
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{handlers: make(map[events.EventType][]events.EventHandler)}
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	handlers := append([]events.EventHandler{}, d.handlers[event.Type]...)
	d.mu.Unlock()
	for _, handler := range handlers {
		_ = handler(ctx, event)
	}
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
