package licensing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/solpumpai/backend/internal/models"
	"github.com/solpumpai/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// In-memory mocks for Store, VerificationLog and Oracle.
// ---------------------------------------------------------------------------

type mockStore struct {
	mu       sync.Mutex
	licenses map[string]*models.License // by key
}

func newMockStore(lics ...*models.License) *mockStore {
	m := &mockStore{licenses: make(map[string]*models.License)}
	for _, l := range lics {
		cp := *l
		m.licenses[l.Key] = &cp
	}
	return m
}

func (m *mockStore) Create(_ context.Context, l *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.licenses {
		if existing.Wallet == l.Wallet {
			return errors.New("duplicate wallet binding")
		}
	}
	cp := *l
	cp.CreatedAt = time.Now()
	m.licenses[l.Key] = &cp
	l.CreatedAt = cp.CreatedAt
	return nil
}

func (m *mockStore) GetByKey(_ context.Context, key string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.licenses[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockStore) GetByWallet(_ context.Context, wallet string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.licenses {
		if l.Wallet == wallet {
			cp := *l
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// MarkVerified mirrors the repository semantics: deactivation keeps the
// stale timestamp so the next resolution re-checks.
func (m *mockStore) MarkVerified(_ context.Context, key string, active bool, verifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.licenses[key]
	if !ok {
		return repository.ErrNotFound
	}
	l.Active = active
	if active {
		l.LastVerifiedAt = verifiedAt
	}
	return nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.licenses)
}

func (m *mockStore) byKey(key string) *models.License {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.licenses[key]
}

// ---

type mockVlog struct {
	mu      sync.Mutex
	entries []*models.VerificationLogEntry
}

func (m *mockVlog) Create(_ context.Context, e *models.VerificationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockVlog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ---

type mockOracle struct {
	mu      sync.Mutex
	balance float64
	err     error
	calls   int
}

func (m *mockOracle) TokenBalance(_ context.Context, _, _ string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.balance, nil
}

func (m *mockOracle) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const testWallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func testConfig() Config {
	return Config{
		TokenMint:        "TESTMINT",
		MinimumTokens:    1000,
		ReverifyInterval: 24 * time.Hour,
		StartingGrant:    50,
	}
}

func newTestService(store *mockStore, vlog *mockVlog, oracle *mockOracle) *Service {
	return NewService(store, vlog, oracle, testConfig(), slog.Default())
}

// ---------------------------------------------------------------------------
// IssueOrFetch
// ---------------------------------------------------------------------------

func TestIssueOrFetch_InvalidWallet(t *testing.T) {
	svc := newTestService(newMockStore(), &mockVlog{}, &mockOracle{balance: 5000})

	for _, wallet := range []string{"", "short", strings.Repeat("x", 45)} {
		if _, _, err := svc.IssueOrFetch(context.Background(), wallet); !errors.Is(err, ErrInvalidWallet) {
			t.Errorf("wallet %q: expected ErrInvalidWallet, got %v", wallet, err)
		}
	}
}

func TestIssueOrFetch_InsufficientBalance(t *testing.T) {
	store := newMockStore()
	vlog := &mockVlog{}
	svc := newTestService(store, vlog, &mockOracle{balance: 0})

	_, _, err := svc.IssueOrFetch(context.Background(), testWallet)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	// No license row was created.
	if store.count() != 0 {
		t.Errorf("expected no license rows, got %d", store.count())
	}
	// The consultation was still logged.
	if vlog.count() != 1 {
		t.Errorf("verification log entries: got %d, want 1", vlog.count())
	}
}

func TestIssueOrFetch_NewLicense(t *testing.T) {
	store := newMockStore()
	vlog := &mockVlog{}
	svc := newTestService(store, vlog, &mockOracle{balance: 5000})

	lic, created, err := svc.IssueOrFetch(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("IssueOrFetch: %v", err)
	}
	if !created {
		t.Error("expected created=true for a new wallet")
	}
	if !strings.HasPrefix(lic.Key, keyPrefix) {
		t.Errorf("key %q missing prefix %q", lic.Key, keyPrefix)
	}
	if strings.Contains(lic.Key, testWallet[:8]) {
		t.Error("license key must not be derived from the wallet address")
	}
	if lic.CallsRemaining != 50 {
		t.Errorf("starting grant: got %d, want 50", lic.CallsRemaining)
	}
	if !lic.Active {
		t.Error("new license should be active")
	}
	if lic.WalletHash != models.FingerprintWallet(testWallet) {
		t.Error("wallet hash mismatch")
	}
	if vlog.count() != 1 {
		t.Errorf("verification log entries: got %d, want 1", vlog.count())
	}
}

func TestIssueOrFetch_SameWalletReturnsSameKey(t *testing.T) {
	store := newMockStore()
	oracle := &mockOracle{balance: 5000}
	svc := newTestService(store, &mockVlog{}, oracle)

	first, created, err := svc.IssueOrFetch(context.Background(), testWallet)
	if err != nil || !created {
		t.Fatalf("first issue: created=%v err=%v", created, err)
	}

	second, created, err := svc.IssueOrFetch(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if created {
		t.Error("second issue must not create a new license")
	}
	if second.Key != first.Key {
		t.Errorf("expected same key both times: %q vs %q", first.Key, second.Key)
	}
	if store.count() != 1 {
		t.Errorf("license rows: got %d, want 1", store.count())
	}
	// The fresh license is within the re-verify interval, so the second
	// call must not consult the oracle again.
	if got := oracle.callCount(); got != 1 {
		t.Errorf("oracle consultations: got %d, want 1", got)
	}
}

func TestIssueOrFetch_OracleFailureFailsClosed(t *testing.T) {
	store := newMockStore()
	vlog := &mockVlog{}
	svc := newTestService(store, vlog, &mockOracle{err: errors.New("rpc timeout")})

	_, _, err := svc.IssueOrFetch(context.Background(), testWallet)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance on oracle failure, got %v", err)
	}
	if store.count() != 0 {
		t.Error("no license may be created when the oracle is unreachable")
	}
	if vlog.count() != 1 {
		t.Errorf("consultation must be logged even on failure: got %d entries", vlog.count())
	}
}

// ---------------------------------------------------------------------------
// Resolve / re-verification
// ---------------------------------------------------------------------------

func staleLicense(active bool) *models.License {
	return &models.License{
		Key:            "SOLPUMPAI-testkey",
		Wallet:         testWallet,
		WalletHash:     models.FingerprintWallet(testWallet),
		CallsRemaining: 10,
		Active:         active,
		LastVerifiedAt: time.Now().Add(-48 * time.Hour),
	}
}

func freshLicense(active bool) *models.License {
	l := staleLicense(active)
	l.LastVerifiedAt = time.Now().Add(-time.Hour)
	return l
}

func TestResolve_UnknownKey(t *testing.T) {
	svc := newTestService(newMockStore(), &mockVlog{}, &mockOracle{})
	if _, err := svc.Resolve(context.Background(), "SOLPUMPAI-nope"); !errors.Is(err, ErrUnknownLicense) {
		t.Fatalf("expected ErrUnknownLicense, got %v", err)
	}
}

func TestResolve_FreshSkipsOracle(t *testing.T) {
	oracle := &mockOracle{balance: 5000}
	svc := newTestService(newMockStore(freshLicense(true)), &mockVlog{}, oracle)

	lic, err := svc.Resolve(context.Background(), "SOLPUMPAI-testkey")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !lic.Active {
		t.Error("license should remain active")
	}
	if oracle.callCount() != 0 {
		t.Errorf("fresh license must not consult the oracle, got %d calls", oracle.callCount())
	}
}

func TestResolve_StaleConsultsExactlyOnce(t *testing.T) {
	store := newMockStore(staleLicense(true))
	oracle := &mockOracle{balance: 5000}
	svc := newTestService(store, &mockVlog{}, oracle)

	frozen := time.Now().UTC().Truncate(time.Second)
	svc.now = func() time.Time { return frozen }

	lic, err := svc.Resolve(context.Background(), "SOLPUMPAI-testkey")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := oracle.callCount(); got != 1 {
		t.Fatalf("oracle consultations: got %d, want exactly 1", got)
	}
	if !lic.LastVerifiedAt.Equal(frozen) {
		t.Errorf("last_verified_at: got %v, want %v", lic.LastVerifiedAt, frozen)
	}
	if !store.byKey("SOLPUMPAI-testkey").Active {
		t.Error("stored license should stay active")
	}
}

func TestResolve_StaleInsufficientDeactivates(t *testing.T) {
	store := newMockStore(staleLicense(true))
	svc := newTestService(store, &mockVlog{}, &mockOracle{balance: 10})

	lic, err := svc.Resolve(context.Background(), "SOLPUMPAI-testkey")
	if !errors.Is(err, ErrLicenseDeactivated) {
		t.Fatalf("expected ErrLicenseDeactivated, got %v", err)
	}
	if lic == nil || lic.Active {
		t.Error("returned license should be inactive")
	}
	if store.byKey("SOLPUMPAI-testkey").Active {
		t.Error("stored license should be deactivated")
	}
}

func TestResolve_DeactivationIsReversible(t *testing.T) {
	store := newMockStore(staleLicense(true))
	oracle := &mockOracle{balance: 10}
	svc := newTestService(store, &mockVlog{}, oracle)

	if _, err := svc.Resolve(context.Background(), "SOLPUMPAI-testkey"); !errors.Is(err, ErrLicenseDeactivated) {
		t.Fatalf("setup: expected deactivation, got %v", err)
	}

	// Tokens bought back: the next resolution reactivates.
	oracle.mu.Lock()
	oracle.balance = 5000
	oracle.mu.Unlock()

	lic, err := svc.Resolve(context.Background(), "SOLPUMPAI-testkey")
	if err != nil {
		t.Fatalf("Resolve after rebuy: %v", err)
	}
	if !lic.Active {
		t.Error("license should be reactivated on successful re-verification")
	}
	if !store.byKey("SOLPUMPAI-testkey").Active {
		t.Error("stored license should be active again")
	}
}

func TestResolve_InactiveButFreshReturnsWithoutOracle(t *testing.T) {
	oracle := &mockOracle{balance: 5000}
	svc := newTestService(newMockStore(freshLicense(false)), &mockVlog{}, oracle)

	lic, err := svc.Resolve(context.Background(), "SOLPUMPAI-testkey")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if lic.Active {
		t.Error("license should still be inactive")
	}
	if oracle.callCount() != 0 {
		t.Error("recently-verified license must not consult the oracle")
	}
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

func TestLookup_NeverConsultsOracle(t *testing.T) {
	oracle := &mockOracle{balance: 5000}
	svc := newTestService(newMockStore(staleLicense(true)), &mockVlog{}, oracle)

	if _, err := svc.Lookup(context.Background(), "SOLPUMPAI-testkey"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if oracle.callCount() != 0 {
		t.Errorf("Lookup must not re-verify, got %d oracle calls", oracle.callCount())
	}
}
