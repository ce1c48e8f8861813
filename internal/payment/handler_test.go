package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vacuum-rental-backend/internal/model"
	"vacuum-rental-backend/internal/realtime"
	"vacuum-rental-backend/internal/session"
	"vacuum-rental-backend/internal/store"
)

type fakeProvider struct {
	mu       sync.Mutex
	statuses map[string]model.TransactionStatus
	created  int
	lookups  int
}

func (f *fakeProvider) CreatePayment(_ context.Context, _ string, _ int64, _ model.PaymentMethod) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return fmt.Sprintf("ext-%d", f.created), nil
}

func (f *fakeProvider) GetPaymentStatus(_ context.Context, externalID string) (model.TransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	status, ok := f.statuses[externalID]
	if !ok {
		return "", fmt.Errorf("%w: no such payment", ErrUnknownPayment)
	}
	return status, nil
}

func (f *fakeProvider) setStatus(externalID string, status model.TransactionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[externalID] = status
}

type deviceCall struct {
	machineID string
	duration  time.Duration
}

type fakeDevices struct {
	mu            sync.Mutex
	activations   []deviceCall
	deactivations []string
}

func (f *fakeDevices) RequestActivation(machineID string, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations = append(f.activations, deviceCall{machineID, duration})
	return nil
}

func (f *fakeDevices) RequestDeactivation(machineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivations = append(f.deactivations, machineID)
	return nil
}

type notified struct {
	userID string
	ev     realtime.Event
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notified
}

func (f *fakeNotifier) Publish(userID string, ev realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notified{userID, ev})
}

func (f *fakeNotifier) byType(t realtime.EventType) []notified {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notified
	for _, n := range f.events {
		if n.ev.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type handlerFixture struct {
	db       *gorm.DB
	store    store.Store
	provider *fakeProvider
	devices  *fakeDevices
	notifier *fakeNotifier
	manager  *session.Manager
	handler  *ConfirmationHandler
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(&model.User{}, &model.Machine{}, &model.Session{}, &model.Transaction{}))

	f := &handlerFixture{
		db:       gdb,
		store:    store.NewGormStore(gdb),
		provider: &fakeProvider{statuses: make(map[string]model.TransactionStatus)},
		devices:  &fakeDevices{},
		notifier: &fakeNotifier{},
	}
	gateway := NewGateway(f.provider)
	f.manager = session.NewManager(f.store, f.devices, f.notifier, gateway, 100)
	f.handler = NewConfirmationHandler(f.store, gateway, f.manager, f.notifier)

	require.NoError(t, gdb.Create(&model.Machine{ID: "m1", Code: "M1", Status: model.MachineOnline}).Error)
	require.NoError(t, gdb.Create(&model.User{ID: "u1", Name: "Ana", BalanceCents: 0}).Error)
	return f
}

func (f *handlerFixture) balance(t *testing.T) int64 {
	t.Helper()
	var user model.User
	require.NoError(t, f.db.First(&user, "id = ?", "u1").Error)
	return user.BalanceCents
}

func TestApprovedWebhookEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, txn, err := f.manager.StartSession(ctx, "m1", "u1", 10, model.MethodPix)
	require.NoError(t, err)
	f.provider.setStatus(txn.ExternalPaymentID, model.TransactionApproved)

	require.NoError(t, f.handler.Process(ctx, txn.ExternalPaymentID))

	updatedTxn, err := f.store.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionApproved, updatedTxn.Status)

	assert.Equal(t, int64(1000), f.balance(t))

	updatedSess, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, updatedSess.Status)
	require.NotNil(t, updatedSess.StartTime)
	assert.WithinDuration(t, time.Now().UTC(), *updatedSess.StartTime, 5*time.Second)

	var machine model.Machine
	require.NoError(t, f.db.First(&machine, "id = ?", "m1").Error)
	assert.Equal(t, model.MachineInUse, machine.Status)

	require.Len(t, f.devices.activations, 1)
	assert.Equal(t, "m1", f.devices.activations[0].machineID)
	assert.Equal(t, int64(600000), f.devices.activations[0].duration.Milliseconds())

	confirmed := f.notifier.byType(realtime.EventPaymentConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "u1", confirmed[0].userID)
	payload, ok := confirmed[0].ev.Payload.(realtime.PaymentConfirmedPayload)
	require.True(t, ok)
	assert.Equal(t, int64(1000), payload.NewBalance)
	assert.Equal(t, txn.ExternalPaymentID, payload.PaymentID)
}

// Delivering the same approved webhook N times must credit the balance once,
// activate once and emit one event.
func TestApprovedWebhookIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, txn, err := f.manager.StartSession(ctx, "m1", "u1", 10, model.MethodPix)
	require.NoError(t, err)
	f.provider.setStatus(txn.ExternalPaymentID, model.TransactionApproved)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.handler.Process(ctx, txn.ExternalPaymentID))
	}

	assert.Equal(t, int64(1000), f.balance(t), "balance must be credited exactly once")
	assert.Len(t, f.notifier.byType(realtime.EventPaymentConfirmed), 1)
	assert.Len(t, f.devices.activations, 1)
}

func TestRejectedWebhookCancelsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, txn, err := f.manager.StartSession(ctx, "m1", "u1", 10, model.MethodPix)
	require.NoError(t, err)
	f.provider.setStatus(txn.ExternalPaymentID, model.TransactionRejected)

	require.NoError(t, f.handler.Process(ctx, txn.ExternalPaymentID))

	updatedTxn, err := f.store.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionRejected, updatedTxn.Status)

	updatedSess, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, updatedSess.Status)

	var machine model.Machine
	require.NoError(t, f.db.First(&machine, "id = ?", "m1").Error)
	assert.Equal(t, model.MachineOnline, machine.Status)

	assert.Equal(t, int64(0), f.balance(t))
	assert.Empty(t, f.devices.activations, "no device command on a failed payment")
	assert.Len(t, f.notifier.byType(realtime.EventPaymentFailed), 1)
	assert.Empty(t, f.notifier.byType(realtime.EventPaymentConfirmed))
}

func TestUnknownPaymentAcknowledgedWithoutMutation(t *testing.T) {
	f := newFixture(t)

	err := f.handler.Process(context.Background(), "ext-nope")
	assert.ErrorIs(t, err, ErrUnknownPayment)
	assert.Equal(t, int64(0), f.balance(t))
	assert.Empty(t, f.notifier.events)
}

func TestPendingWebhookLeavesStateAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, txn, err := f.manager.StartSession(ctx, "m1", "u1", 10, model.MethodPix)
	require.NoError(t, err)
	f.provider.setStatus(txn.ExternalPaymentID, model.TransactionPending)

	require.NoError(t, f.handler.Process(ctx, txn.ExternalPaymentID))

	updatedSess, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPending, updatedSess.Status)
	assert.Equal(t, int64(0), f.balance(t))
	assert.Empty(t, f.notifier.events)
}

// admin_credit settles locally; the provider must never be consulted.
func TestAdminCreditResolvesWithoutProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, txn, err := f.manager.StartSession(ctx, "m1", "u1", 5, model.MethodAdminCredit)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(txn.ExternalPaymentID, "admin-"))

	require.NoError(t, f.handler.Process(ctx, txn.ExternalPaymentID))

	updatedSess, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, updatedSess.Status)
	assert.Equal(t, 0, f.provider.lookups)
}
