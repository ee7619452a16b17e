package payments

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/solpumpai/backend/internal/licensing"
	"github.com/solpumpai/backend/internal/models"
	"github.com/solpumpai/backend/internal/repository"
	"github.com/solpumpai/backend/internal/solana"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

// --- Licenses mock ---

type mockLicenses struct {
	lic *models.License
}

func (m *mockLicenses) Lookup(_ context.Context, key string) (*models.License, error) {
	if m.lic == nil || m.lic.Key != key {
		return nil, licensing.ErrUnknownLicense
	}
	cp := *m.lic
	return &cp, nil
}

// --- Store mock ---

type mockStore struct {
	mu    sync.Mutex
	calls map[string]int
}

func newMockStore(key string, calls int) *mockStore {
	return &mockStore{calls: map[string]int{key: calls}}
}

func (m *mockStore) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (m *mockStore) AddCallsTx(_ context.Context, _ pgx.Tx, key string, calls int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[key]; !ok {
		return 0, repository.ErrNotFound
	}
	m.calls[key] += calls
	return m.calls[key], nil
}

func (m *mockStore) remaining(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

// --- PaymentLog mock ---

type mockPaymentLog struct {
	mu      sync.Mutex
	records map[string]*models.PaymentRecord // by signature
}

func newMockPaymentLog() *mockPaymentLog {
	return &mockPaymentLog{records: make(map[string]*models.PaymentRecord)}
}

func (m *mockPaymentLog) CreateTx(_ context.Context, _ pgx.Tx, p *models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[p.TxSignature]; ok {
		return repository.ErrDuplicateSignature
	}
	cp := *p
	m.records[p.TxSignature] = &cp
	return nil
}

func (m *mockPaymentLog) SignatureExists(_ context.Context, signature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[signature]
	return ok, nil
}

func (m *mockPaymentLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// --- BurnOracle mock ---

type mockBurnOracle struct {
	mu    sync.Mutex
	burn  *solana.Burn
	err   error
	calls int
}

func (m *mockBurnOracle) FindBurn(_ context.Context, _, _, _ string, _ float64, _ time.Duration) (*solana.Burn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.burn, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const (
	testKey = "SOLPUMPAI-paykey"
	testSig = "5VfYmGBJKzXA9qwNEZ3YbUTvvL3kDx4fR8p2hQmWcS1juKL9tMnE6gXD7yPoBZaH"
)

func testService(lic *models.License, store *mockStore, log PaymentLog, oracle *mockBurnOracle) *Service {
	cfg := Config{BurnWallet: "11111111111111111111111111111111", BurnWindow: 5 * time.Minute}
	return NewService(&mockLicenses{lic: lic}, store, log, oracle, cfg, slog.Default())
}

func payingLicense() *models.License {
	return &models.License{
		Key:            testKey,
		Wallet:         "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		WalletHash:     "abcd1234abcd1234",
		CallsRemaining: 5,
		Active:         true,
	}
}

// ---------------------------------------------------------------------------
// Credit
// ---------------------------------------------------------------------------

func TestCredit_Success(t *testing.T) {
	store := newMockStore(testKey, 5)
	log := newMockPaymentLog()
	oracle := &mockBurnOracle{burn: &solana.Burn{Signature: testSig, Amount: 5000}}
	svc := testService(payingLicense(), store, log, oracle)

	receipt, err := svc.Credit(context.Background(), testKey, "medium", testSig)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if receipt.CallsAdded != 600 {
		t.Errorf("calls added: got %d, want 600", receipt.CallsAdded)
	}
	if receipt.CallsRemaining != 605 {
		t.Errorf("calls remaining: got %d, want 605", receipt.CallsRemaining)
	}
	if receipt.TokensBurned != 5000 {
		t.Errorf("tokens burned: got %g, want 5000", receipt.TokensBurned)
	}
	if log.count() != 1 {
		t.Errorf("payment records: got %d, want 1", log.count())
	}
}

func TestCredit_ReplayIsNoOp(t *testing.T) {
	store := newMockStore(testKey, 5)
	log := newMockPaymentLog()
	oracle := &mockBurnOracle{burn: &solana.Burn{Signature: testSig, Amount: 1000}}
	svc := testService(payingLicense(), store, log, oracle)

	if _, err := svc.Credit(context.Background(), testKey, "small", testSig); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	balanceAfterFirst := store.remaining(testKey)

	_, err := svc.Credit(context.Background(), testKey, "small", testSig)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if got := store.remaining(testKey); got != balanceAfterFirst {
		t.Errorf("replay changed allowance: got %d, want %d", got, balanceAfterFirst)
	}
	if log.count() != 1 {
		t.Errorf("payment records after replay: got %d, want 1", log.count())
	}
	// The pre-check short-circuits before the oracle.
	if oracle.calls != 1 {
		t.Errorf("oracle consultations: got %d, want 1", oracle.calls)
	}
}

func TestCredit_RaceLoserSeesDuplicate(t *testing.T) {
	// SignatureExists said no, but the insert hits the unique constraint:
	// a concurrent submission won the race.
	store := newMockStore(testKey, 5)
	log := newMockPaymentLog()
	log.records[testSig] = &models.PaymentRecord{TxSignature: testSig}

	// Bypass the pre-check by making SignatureExists lie.
	svc := testService(payingLicense(), store, &racingPaymentLog{inner: log},
		&mockBurnOracle{burn: &solana.Burn{Signature: testSig, Amount: 1000}})

	_, err := svc.Credit(context.Background(), testKey, "small", testSig)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if store.remaining(testKey) != 5 {
		t.Error("race loser must not change the allowance")
	}
}

// racingPaymentLog reports signatures as unseen so the insert-time unique
// violation path is exercised.
type racingPaymentLog struct {
	inner *mockPaymentLog
}

func (r *racingPaymentLog) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRecord) error {
	return r.inner.CreateTx(ctx, tx, p)
}

func (r *racingPaymentLog) SignatureExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestCredit_BurnNotFound(t *testing.T) {
	store := newMockStore(testKey, 5)
	log := newMockPaymentLog()
	svc := testService(payingLicense(), store, log, &mockBurnOracle{burn: nil})

	_, err := svc.Credit(context.Background(), testKey, "small", testSig)
	if !errors.Is(err, ErrBurnNotFound) {
		t.Fatalf("expected ErrBurnNotFound, got %v", err)
	}
	if store.remaining(testKey) != 5 {
		t.Error("missing burn must not change the allowance")
	}
	if log.count() != 0 {
		t.Error("missing burn must not record a payment")
	}
}

func TestCredit_OracleUnavailable(t *testing.T) {
	store := newMockStore(testKey, 5)
	svc := testService(payingLicense(), store, newMockPaymentLog(),
		&mockBurnOracle{err: errors.New("rpc timeout")})

	_, err := svc.Credit(context.Background(), testKey, "small", testSig)
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if store.remaining(testKey) != 5 {
		t.Error("oracle failure must not change the allowance")
	}
}

func TestCredit_UnknownPackage(t *testing.T) {
	oracle := &mockBurnOracle{}
	svc := testService(payingLicense(), newMockStore(testKey, 5), newMockPaymentLog(), oracle)

	_, err := svc.Credit(context.Background(), testKey, "mega", testSig)
	if !errors.Is(err, ErrUnknownPackage) {
		t.Fatalf("expected ErrUnknownPackage, got %v", err)
	}
	if oracle.calls != 0 {
		t.Error("unknown package must fail before the oracle")
	}
}

func TestCredit_UnknownLicense(t *testing.T) {
	svc := testService(payingLicense(), newMockStore(testKey, 5), newMockPaymentLog(), &mockBurnOracle{})

	if _, err := svc.Credit(context.Background(), "SOLPUMPAI-other", "small", testSig); !errors.Is(err, licensing.ErrUnknownLicense) {
		t.Fatalf("expected ErrUnknownLicense, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

func TestCatalog(t *testing.T) {
	cases := []struct {
		id     string
		tokens float64
		calls  int
	}{
		{"small", 1000, 100},
		{"medium", 5000, 600},
		{"large", 10000, 1500},
	}
	for _, tc := range cases {
		pkg := Lookup(tc.id)
		if pkg == nil {
			t.Fatalf("Lookup(%q) returned nil", tc.id)
		}
		if pkg.TokensNeeded != tc.tokens || pkg.CallsGranted != tc.calls {
			t.Errorf("package %q: got %g tokens/%d calls, want %g/%d",
				tc.id, pkg.TokensNeeded, pkg.CallsGranted, tc.tokens, tc.calls)
		}
	}
	if Lookup("xl") != nil {
		t.Error("unknown package id must return nil")
	}
}
