package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bhhunter/rental-backend/internal/database"
	"github.com/bhhunter/rental-backend/internal/events"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// ============================================================================
// IN-MEMORY DATABASE
// ============================================================================

type accountKey struct {
	role models.UserRole
	id   int64
}

type memoryDB struct {
	mu            sync.Mutex
	nextID        int64
	now           time.Time
	bookings      map[int64]models.Booking
	rooms         map[int64]models.Room
	payments      map[int64]models.Payment
	payouts       map[int64]models.Payout
	notifications map[int64]models.Notification
	documents     map[int64]models.VerificationDocument
	accounts      map[accountKey]models.Account
	failures      map[string]error
	accountWrites int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		nextID:        100,
		now:           time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		bookings:      map[int64]models.Booking{},
		rooms:         map[int64]models.Room{},
		payments:      map[int64]models.Payment{},
		payouts:       map[int64]models.Payout{},
		notifications: map[int64]models.Notification{},
		documents:     map[int64]models.VerificationDocument{},
		accounts:      map[accountKey]models.Account{},
		failures:      map[string]error{},
	}
}

func (db *memoryDB) repos() database.Repositories {
	return database.Repositories{
		Bookings:      fakeBookings{db},
		Rooms:         fakeRooms{db},
		Payments:      fakePayments{db},
		Payouts:       fakePayouts{db},
		Notifications: fakeNotifications{db},
		Verification:  fakeVerification{db},
	}
}

func (db *memoryDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memoryDB) fail(op string) error {
	return db.failures[op]
}

func (db *memoryDB) snapshot() *memoryDB {
	cp := memoryDB{
		nextID:        db.nextID,
		now:           db.now,
		rooms:         db.rooms,
		failures:      db.failures,
		accountWrites: db.accountWrites,
	}
	cp.bookings = copyMap(db.bookings)
	cp.payments = copyMap(db.payments)
	cp.payouts = copyMap(db.payouts)
	cp.notifications = copyMap(db.notifications)
	cp.documents = copyMap(db.documents)
	cp.accounts = copyMap(db.accounts)
	return &cp
}

func (db *memoryDB) restore(s *memoryDB) {
	db.bookings = s.bookings
	db.payments = s.payments
	db.payouts = s.payouts
	db.notifications = s.notifications
	db.documents = s.documents
	db.accounts = s.accounts
	db.nextID = s.nextID
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// seedBooking stores a room (owner 1, price 1500) and a booking in the given status
func (db *memoryDB) seedBooking(status models.BookingStatus) *models.Booking {
	db.rooms[7] = models.Room{ID: 7, BoardingHouseID: 3, OwnerID: 1, RoomNumber: "2A", Price: decimal.NewFromInt(1500)}
	id := db.id()
	db.bookings[id] = models.Booking{
		ID:              id,
		Reference:       "BK-1",
		TenantID:        2,
		RoomID:          7,
		BoardingHouseID: 3,
		CheckInDate:     db.now.AddDate(0, 0, 7),
		CheckOutDate:    db.now.AddDate(0, 1, 7),
		Status:          status,
		DateBooked:      db.now,
	}
	b, _ := fakeBookings{db}.GetByID(context.Background(), id)
	return b
}

// seedPayment stores a payment for bookingID in the given status
func (db *memoryDB) seedPayment(bookingID int64, status models.PaymentStatus, intentID string) *models.Payment {
	id := db.id()
	owner := int64(1)
	p := models.Payment{
		ID:           id,
		UserID:       2,
		UserRole:     models.RoleTenant,
		OwnerID:      &owner,
		BookingID:    &bookingID,
		Amount:       decimal.NewFromInt(1500),
		Currency:     "PHP",
		PurchaseType: models.PurchaseTypeBooking,
		Provider:     models.PaymentProviderPaymongo,
		Status:       status,
		CreatedAt:    db.now,
		UpdatedAt:    db.now,
	}
	if intentID != "" {
		p.ProviderPaymentIntentID = &intentID
	}
	db.payments[id] = p
	return &p
}

func (db *memoryDB) bookingStatus(id int64) models.BookingStatus {
	return db.bookings[id].Status
}

func (db *memoryDB) paymentStatus(id int64) models.PaymentStatus {
	return db.payments[id].Status
}

// ============================================================================
// UNIT OF WORK
// ============================================================================

type fakeUnitOfWork struct {
	db *memoryDB
}

func (u fakeUnitOfWork) WithinTx(ctx context.Context, fn func(repos database.Repositories) error) error {
	if err := u.db.fail("tx.Begin"); err != nil {
		return err
	}
	snap := u.db.snapshot()
	if err := fn(u.db.repos()); err != nil {
		u.db.restore(snap)
		return err
	}
	if err := u.db.fail("tx.Commit"); err != nil {
		u.db.restore(snap)
		return err
	}
	return nil
}

// ============================================================================
// STORES
// ============================================================================

type fakeBookings struct{ db *memoryDB }

func (f fakeBookings) Create(ctx context.Context, b *models.Booking) error {
	if err := f.db.fail("bookings.Create"); err != nil {
		return err
	}
	b.ID = f.db.id()
	b.CreatedAt, b.UpdatedAt = f.db.now, f.db.now
	f.db.bookings[b.ID] = *b
	return nil
}

func (f fakeBookings) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	if err := f.db.fail("bookings.GetByID"); err != nil {
		return nil, err
	}
	b, ok := f.db.bookings[id]
	if !ok || b.IsDeleted {
		return nil, nil
	}
	if room, ok := f.db.rooms[b.RoomID]; ok {
		b.OwnerID = room.OwnerID
		b.RoomPrice = room.Price
	}
	return &b, nil
}

func (f fakeBookings) List(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	var matched []*models.Booking
	for id := range f.db.bookings {
		b, _ := f.GetByID(ctx, id)
		if b == nil {
			continue
		}
		if filter.TenantID != nil && b.TenantID != *filter.TenantID {
			continue
		}
		if filter.OwnerID != nil && b.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (f fakeBookings) TransitionStatus(ctx context.Context, id int64, from []models.BookingStatus, to models.BookingStatus, msgs models.BookingMessages) (bool, error) {
	if err := f.db.fail("bookings.TransitionStatus"); err != nil {
		return false, err
	}
	b, ok := f.db.bookings[id]
	if !ok || b.IsDeleted || !containsStatus(from, b.Status) {
		return false, nil
	}
	b.Status = to
	if msgs.OwnerMessage != nil {
		b.OwnerMessage = msgs.OwnerMessage
	}
	if msgs.TenantMessage != nil {
		b.TenantMessage = msgs.TenantMessage
	}
	b.UpdatedAt = f.db.now
	f.db.bookings[id] = b
	return true, nil
}

func (f fakeBookings) UpdateDates(ctx context.Context, id int64, checkIn, checkOut time.Time) (bool, error) {
	b, ok := f.db.bookings[id]
	if !ok || b.IsDeleted || b.Status != models.BookingStatusPendingRequest {
		return false, nil
	}
	b.CheckInDate, b.CheckOutDate = checkIn, checkOut
	f.db.bookings[id] = b
	return true, nil
}

func (f fakeBookings) SoftDelete(ctx context.Context, id int64) (bool, error) {
	b, ok := f.db.bookings[id]
	if !ok || b.IsDeleted {
		return false, nil
	}
	b.IsDeleted = true
	f.db.bookings[id] = b
	return true, nil
}

func containsStatus[S comparable](set []S, s S) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

type fakeRooms struct{ db *memoryDB }

func (f fakeRooms) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	r, ok := f.db.rooms[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

type fakePayments struct{ db *memoryDB }

func (f fakePayments) Create(ctx context.Context, p *models.Payment) error {
	if err := f.db.fail("payments.Create"); err != nil {
		return err
	}
	p.ID = f.db.id()
	p.CreatedAt, p.UpdatedAt = f.db.now, f.db.now
	f.db.payments[p.ID] = *p
	return nil
}

func (f fakePayments) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	p, ok := f.db.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f fakePayments) find(match func(models.Payment) bool) *models.Payment {
	for _, p := range f.db.payments {
		if match(p) {
			cp := p
			return &cp
		}
	}
	return nil
}

func (f fakePayments) GetByProviderIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool {
		return p.ProviderPaymentIntentID != nil && *p.ProviderPaymentIntentID == intentID
	}), nil
}

func (f fakePayments) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool {
		return p.ProviderPaymentID != nil && *p.ProviderPaymentID == providerPaymentID
	}), nil
}

func (f fakePayments) GetLatestForBooking(ctx context.Context, bookingID int64) (*models.Payment, error) {
	var latest *models.Payment
	for _, p := range f.db.payments {
		if p.BookingID == nil || *p.BookingID != bookingID {
			continue
		}
		if latest == nil || p.ID > latest.ID {
			cp := p
			latest = &cp
		}
	}
	return latest, nil
}

func (f fakePayments) AttachProviderRefs(ctx context.Context, id int64, refs models.ProviderRefs, status models.PaymentStatus) (bool, error) {
	p, ok := f.db.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	if refs.PaymentIntentID != nil {
		p.ProviderPaymentIntentID = refs.PaymentIntentID
	}
	if refs.PaymentLinkID != nil {
		p.ProviderPaymentLinkID = refs.PaymentLinkID
	}
	if refs.PaymentID != nil {
		p.ProviderPaymentID = refs.PaymentID
	}
	p.Status = status
	f.db.payments[id] = p
	return true, nil
}

func (f fakePayments) BackfillProviderRefs(ctx context.Context, id int64, refs models.ProviderRefs) error {
	p, ok := f.db.payments[id]
	if !ok {
		return nil
	}
	if p.ProviderPaymentIntentID == nil {
		p.ProviderPaymentIntentID = refs.PaymentIntentID
	}
	if p.ProviderPaymentLinkID == nil {
		p.ProviderPaymentLinkID = refs.PaymentLinkID
	}
	if p.ProviderPaymentID == nil {
		p.ProviderPaymentID = refs.PaymentID
	}
	f.db.payments[id] = p
	return nil
}

func (f fakePayments) TransitionStatus(ctx context.Context, id int64, from []models.PaymentStatus, to models.PaymentStatus) (bool, error) {
	if err := f.db.fail("payments.TransitionStatus"); err != nil {
		return false, err
	}
	p, ok := f.db.payments[id]
	if !ok || !containsStatus(from, p.Status) {
		return false, nil
	}
	p.Status = to
	if to == models.PaymentStatusPaid {
		now := f.db.now
		p.PaidAt = &now
	}
	f.db.payments[id] = p
	return true, nil
}

func (f fakePayments) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range f.db.payments {
		if p.Status == models.PaymentStatusRequiresAction && p.ProviderPaymentIntentID != nil && p.UpdatedAt.Before(olderThan) {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakePayments) Touch(ctx context.Context, id int64, at time.Time) error {
	p, ok := f.db.payments[id]
	if !ok {
		return nil
	}
	p.UpdatedAt = at
	f.db.payments[id] = p
	return nil
}

type fakePayouts struct{ db *memoryDB }

func (f fakePayouts) GetPendingByPayment(ctx context.Context, paymentID int64) (*models.Payout, error) {
	for _, p := range f.db.payouts {
		if p.PaymentID == paymentID && p.Status == models.PayoutStatusPending {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakePayouts) CreatePending(ctx context.Context, ownerID, paymentID int64, amount decimal.Decimal, currency string) (*models.Payout, error) {
	if existing, _ := f.GetPendingByPayment(ctx, paymentID); existing != nil {
		return existing, nil
	}
	p := models.Payout{
		ID:        f.db.id(),
		OwnerID:   ownerID,
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  currency,
		Status:    models.PayoutStatusPending,
		CreatedAt: f.db.now,
		UpdatedAt: f.db.now,
	}
	f.db.payouts[p.ID] = p
	return &p, nil
}

type fakeNotifications struct{ db *memoryDB }

func (f fakeNotifications) Create(ctx context.Context, n *models.Notification) error {
	if err := f.db.fail("notifications.Create"); err != nil {
		return err
	}
	n.ID = f.db.id()
	n.CreatedAt = f.db.now
	f.db.notifications[n.ID] = *n
	return nil
}

func (f fakeNotifications) mine(n models.Notification, r models.Recipient) bool {
	return !n.IsDeleted && n.RecipientRole == r.Role && n.RecipientID == r.UserID
}

func (f fakeNotifications) List(ctx context.Context, r models.Recipient, filter models.NotificationFilter) ([]*models.Notification, int, error) {
	var out []*models.Notification
	for _, n := range f.db.notifications {
		if !f.mine(n, r) {
			continue
		}
		if filter.IsRead != nil && n.IsRead != *filter.IsRead {
			continue
		}
		if filter.Type != nil && n.Type != *filter.Type {
			continue
		}
		cp := n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (f fakeNotifications) GetForRecipient(ctx context.Context, id int64, r models.Recipient) (*models.Notification, error) {
	n, ok := f.db.notifications[id]
	if !ok || !f.mine(n, r) {
		return nil, nil
	}
	return &n, nil
}

func (f fakeNotifications) MarkAsRead(ctx context.Context, id int64, r models.Recipient) (bool, error) {
	n, ok := f.db.notifications[id]
	if !ok || !f.mine(n, r) || n.IsRead {
		return false, nil
	}
	now := f.db.now
	n.IsRead, n.ReadAt = true, &now
	f.db.notifications[id] = n
	return true, nil
}

func (f fakeNotifications) MarkAllAsRead(ctx context.Context, r models.Recipient) (int64, error) {
	var changed int64
	for id := range f.db.notifications {
		if ok, _ := f.MarkAsRead(ctx, id, r); ok {
			changed++
		}
	}
	return changed, nil
}

type fakeVerification struct{ db *memoryDB }

func (f fakeVerification) GetDocument(ctx context.Context, id int64) (*models.VerificationDocument, error) {
	d, ok := f.db.documents[id]
	if !ok || d.IsDeleted {
		return nil, nil
	}
	return &d, nil
}

func (f fakeVerification) ReviewDocument(ctx context.Context, id, adminID int64, status models.VerificationStatus, reason *string) (bool, error) {
	d, ok := f.db.documents[id]
	if !ok || d.IsDeleted || d.Status != models.VerificationStatusPending {
		return false, nil
	}
	now := f.db.now
	d.Status, d.RejectReason, d.VerifiedByID, d.ReviewedAt = status, reason, &adminID, &now
	f.db.documents[id] = d
	return true, nil
}

func (f fakeVerification) SoftDeleteDocument(ctx context.Context, id int64) (bool, error) {
	d, ok := f.db.documents[id]
	if !ok || d.IsDeleted {
		return false, nil
	}
	d.IsDeleted = true
	f.db.documents[id] = d
	return true, nil
}

func (f fakeVerification) ListDocuments(ctx context.Context, userID int64, role models.UserRole) ([]*models.VerificationDocument, error) {
	var out []*models.VerificationDocument
	for _, d := range f.db.documents {
		if !d.IsDeleted && d.UserID == userID && d.UserRole == role {
			cp := d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeVerification) ApprovedTypes(ctx context.Context, userID int64, role models.UserRole) ([]models.VerificationType, error) {
	var out []models.VerificationType
	for _, d := range f.db.documents {
		if !d.IsDeleted && d.UserID == userID && d.UserRole == role && d.Status == models.VerificationStatusApproved {
			out = append(out, d.VerificationType)
		}
	}
	return out, nil
}

func (f fakeVerification) GetAccount(ctx context.Context, userID int64, role models.UserRole) (*models.Account, error) {
	a, ok := f.db.accounts[accountKey{role, userID}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f fakeVerification) UpdateAccountVerification(ctx context.Context, userID int64, role models.UserRole, level models.VerificationLevel, status models.RegistrationStatus) error {
	a, ok := f.db.accounts[accountKey{role, userID}]
	if !ok {
		return errors.New("account not found")
	}
	a.VerificationLevel, a.RegistrationStatus = level, status
	f.db.accounts[accountKey{role, userID}] = a
	f.db.accountWrites++
	return nil
}

// ============================================================================
// AUDITS, PUSH AND GATEWAY
// ============================================================================

type fakeAudits struct {
	mu      sync.Mutex
	entries []*models.PaymentAudit
}

func (f *fakeAudits) Log(ctx context.Context, a *models.PaymentAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, a)
	return nil
}

func (f *fakeAudits) CountByProviderEvent(ctx context.Context, eventID string, eventType models.PaymentEventType) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.entries {
		if a.EventType == eventType && a.ProviderEventID != nil && *a.ProviderEventID == eventID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAudits) types() []models.PaymentEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PaymentEventType, 0, len(f.entries))
	for _, a := range f.entries {
		out = append(out, a.EventType)
	}
	return out
}

type fakePusher struct {
	sent []models.Recipient
	err  error
}

func (f *fakePusher) SendToUser(r models.Recipient, n *models.Notification) error {
	f.sent = append(f.sent, r)
	return f.err
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, p *models.Payment) (*PaymentIntent, error) {
	args := m.Called(ctx, p)
	intent, _ := args.Get(0).(*PaymentIntent)
	return intent, args.Error(1)
}

func (m *mockGateway) CreatePaymentLink(ctx context.Context, p *models.Payment) (*PaymentLink, error) {
	args := m.Called(ctx, p)
	link, _ := args.Get(0).(*PaymentLink)
	return link, args.Error(1)
}

func (m *mockGateway) RefundPayment(ctx context.Context, p *models.Payment, reason string) (*Refund, error) {
	args := m.Called(ctx, p, reason)
	refund, _ := args.Get(0).(*Refund)
	return refund, args.Error(1)
}

func (m *mockGateway) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntentResource, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*PaymentIntentResource)
	return res, args.Error(1)
}

// ============================================================================
// HARNESS
// ============================================================================

type eventRecorder struct {
	mu    sync.Mutex
	names []string
	all   []events.Event
}

func (r *eventRecorder) record(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, e.EventName())
	r.all = append(r.all, e)
	return nil
}

func (r *eventRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

func recordAll(bus *events.Bus) *eventRecorder {
	rec := &eventRecorder{}
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.BookingRequested) error { return rec.record(ctx, e) })
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.BookingApproved) error { return rec.record(ctx, e) })
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.BookingRejected) error { return rec.record(ctx, e) })
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.BookingCancelled) error { return rec.record(ctx, e) })
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.BookingCompleted) error { return rec.record(ctx, e) })
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.VerificationDocumentApproved) error { return rec.record(ctx, e) })
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.VerificationDocumentRejected) error { return rec.record(ctx, e) })
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.AccountFullyVerified) error { return rec.record(ctx, e) })
	events.Subscribe(bus, "recorder", func(ctx context.Context, e events.AccountSetupRequired) error { return rec.record(ctx, e) })
	return rec
}

type ledgerHarness struct {
	db       *memoryDB
	gateway  *mockGateway
	audits   *fakeAudits
	events   *eventRecorder
	bus      *events.Bus
	payments *PaymentService
	bookings *BookingService
}

func newLedgerHarness() *ledgerHarness {
	db := newMemoryDB()
	logger := quietLogger()
	bus := events.NewBus(logger)
	gateway := &mockGateway{}
	audits := &fakeAudits{}

	payments := NewPaymentService(db.repos(), fakeUnitOfWork{db}, gateway, audits, bus, logger, "PHP")
	bookings := NewBookingService(db.repos(), payments, bus, logger, "PHP")
	bookings.now = func() time.Time { return db.now }

	return &ledgerHarness{
		db:       db,
		gateway:  gateway,
		audits:   audits,
		events:   recordAll(bus),
		bus:      bus,
		payments: payments,
		bookings: bookings,
	}
}

func (h *ledgerHarness) expectIntent(intentID, secret string) {
	h.gateway.On("CreatePaymentIntent", mock.Anything, mock.AnythingOfType("*models.Payment")).
		Return(&PaymentIntent{ID: intentID, ClientSecret: secret}, nil).Once()
}

var (
	tenantActor = models.Actor{UserID: 2, Role: models.RoleTenant}
	ownerActor  = models.Actor{UserID: 1, Role: models.RoleOwner}
	adminActor  = models.Actor{UserID: 99, Role: models.RoleAdmin}
)

func strPtr(s string) *string { return &s }
