package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pysugar/oauth-mail-sync/internal/auth/google"
	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"github.com/pysugar/oauth-mail-sync/internal/vault"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type fakeTokenEndpoint struct {
	status   int
	body     string
	requests atomic.Int64
}

func (f *fakeTokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		fmt.Fprint(w, f.body)
	}
}

func newTestManager(t *testing.T, endpoint *fakeTokenEndpoint, skew time.Duration) (*Manager, *gorm.DB, *vault.Vault) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.LinkedAccount{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	srv := httptest.NewServer(endpoint.handler())
	t.Cleanup(srv.Close)

	g := google.NewClient("cid", "secret", "http://localhost/oauth2callback")
	g.OAuth.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}
	g.HTTPClient = srv.Client()

	v, err := vault.New("token-test-key")
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return NewManager(gdb, v, g, skew), gdb, v
}

func seedAccount(t *testing.T, gdb *gorm.DB, v *vault.Vault, accessToken, refreshToken string, expiry time.Time) string {
	t.Helper()
	encAccess, err := v.Seal(accessToken)
	if err != nil {
		t.Fatalf("seal access: %v", err)
	}
	encRefresh, err := v.Seal(refreshToken)
	if err != nil {
		t.Fatalf("seal refresh: %v", err)
	}
	acc := models.LinkedAccount{
		ID:              uuid.New().String(),
		UserID:          42,
		Email:           "t@example.com",
		Provider:        "google",
		EncAccessToken:  encAccess,
		EncRefreshToken: encRefresh,
		AccessExpiry:    expiry,
		IsActive:        true,
	}
	if err := gdb.Create(&acc).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc.ID
}

func accountByID(t *testing.T, gdb *gorm.DB, id string) models.LinkedAccount {
	t.Helper()
	var acc models.LinkedAccount
	if err := gdb.Where("id = ?", id).First(&acc).Error; err != nil {
		t.Fatalf("load account: %v", err)
	}
	return acc
}

func TestFreshTokenOutsideSkewSkipsRefresh(t *testing.T) {
	endpoint := &fakeTokenEndpoint{status: 200, body: `{"access_token":"new","token_type":"Bearer","expires_in":3600}`}
	mgr, gdb, v := newTestManager(t, endpoint, 120*time.Second)
	id := seedAccount(t, gdb, v, "current-token", "refresh", time.Now().Add(121*time.Second))

	got, err := mgr.EnsureUsableToken(context.Background(), id)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got != "current-token" {
		t.Fatalf("expected stored token, got %q", got)
	}
	if n := endpoint.requests.Load(); n != 0 {
		t.Fatalf("expected no refresh call, endpoint saw %d", n)
	}
}

func TestStaleTokenInsideSkewRefreshes(t *testing.T) {
	endpoint := &fakeTokenEndpoint{status: 200, body: `{"access_token":"renewed","token_type":"Bearer","expires_in":3600}`}
	mgr, gdb, v := newTestManager(t, endpoint, 120*time.Second)
	id := seedAccount(t, gdb, v, "current-token", "refresh", time.Now().Add(119*time.Second))

	got, err := mgr.EnsureUsableToken(context.Background(), id)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got != "renewed" {
		t.Fatalf("expected renewed token, got %q", got)
	}
	if n := endpoint.requests.Load(); n != 1 {
		t.Fatalf("expected exactly one refresh call, endpoint saw %d", n)
	}

	acc := accountByID(t, gdb, id)
	if stored, _ := v.Open(acc.EncAccessToken); stored != "renewed" {
		t.Fatalf("renewed token not persisted, got %q", stored)
	}
	if stored, _ := v.Open(acc.EncRefreshToken); stored != "refresh" {
		t.Fatalf("refresh token must stay untouched, got %q", stored)
	}
	if !acc.AccessExpiry.After(time.Now().Add(30 * time.Minute)) {
		t.Fatalf("expiry not advanced: %s", acc.AccessExpiry)
	}
}

func TestRevokedRefreshDeactivatesDurably(t *testing.T) {
	endpoint := &fakeTokenEndpoint{status: 400, body: `{"error":"invalid_grant"}`}
	mgr, gdb, v := newTestManager(t, endpoint, 120*time.Second)
	id := seedAccount(t, gdb, v, "stale", "refresh", time.Now().Add(-time.Minute))

	if _, err := mgr.EnsureUsableToken(context.Background(), id); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if acc := accountByID(t, gdb, id); acc.IsActive {
		t.Fatal("account must be deactivated after invalid_grant")
	}

	// Second call must fail fast without another provider round trip.
	before := endpoint.requests.Load()
	if _, err := mgr.EnsureUsableToken(context.Background(), id); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on deactivated account, got %v", err)
	}
	if after := endpoint.requests.Load(); after != before {
		t.Fatalf("deactivated account must not hit the provider, saw %d extra calls", after-before)
	}
}

func TestTransientRefreshFailureKeepsAccountActive(t *testing.T) {
	endpoint := &fakeTokenEndpoint{status: 500, body: `temporarily unavailable`}
	mgr, gdb, v := newTestManager(t, endpoint, 120*time.Second)
	id := seedAccount(t, gdb, v, "stale", "refresh", time.Now().Add(-time.Minute))

	if _, err := mgr.EnsureUsableToken(context.Background(), id); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if acc := accountByID(t, gdb, id); !acc.IsActive {
		t.Fatal("transient failure must not deactivate the account")
	}
}

func TestMissingRefreshTokenIsUnavailable(t *testing.T) {
	endpoint := &fakeTokenEndpoint{status: 200, body: `{}`}
	mgr, gdb, v := newTestManager(t, endpoint, 120*time.Second)
	id := seedAccount(t, gdb, v, "stale", "", time.Now().Add(-time.Minute))

	if _, err := mgr.EnsureUsableToken(context.Background(), id); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if n := endpoint.requests.Load(); n != 0 {
		t.Fatalf("no refresh token means no provider call, saw %d", n)
	}
	if acc := accountByID(t, gdb, id); !acc.IsActive {
		t.Fatal("missing refresh token must not deactivate the account")
	}
}

func TestCorruptedCredentialQuarantinesAccount(t *testing.T) {
	endpoint := &fakeTokenEndpoint{status: 200, body: `{}`}
	mgr, gdb, v := newTestManager(t, endpoint, 120*time.Second)
	id := seedAccount(t, gdb, v, "token", "refresh", time.Now().Add(time.Hour))

	// Simulate tampering with the stored ciphertext.
	if err := gdb.Model(&models.LinkedAccount{}).Where("id = ?", id).
		Update("enc_access_token", "mailsync.enc.v1:corrupted").Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if _, err := mgr.EnsureUsableToken(context.Background(), id); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if acc := accountByID(t, gdb, id); acc.IsActive {
		t.Fatal("corrupted credential must deactivate the account pending investigation")
	}
}

func TestIsPermanentRefreshError(t *testing.T) {
	tests := []struct {
		name      string
		errText   string
		permanent bool
	}{
		{name: "invalid grant", errText: "oauth2: cannot fetch token: 400 Bad Request {\"error\":\"invalid_grant\"}", permanent: true},
		{name: "revoked", errText: "token has been expired or revoked", permanent: true},
		{name: "invalid client", errText: "oauth2: \"invalid_client\"", permanent: true},
		{name: "timeout", errText: "context deadline exceeded", permanent: false},
		{name: "temporary", errText: "temporarily_unavailable", permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPermanentRefreshError(assertErr(tt.errText))
			if got != tt.permanent {
				t.Fatalf("expected %v, got %v", tt.permanent, got)
			}
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
