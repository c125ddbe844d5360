package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := &Account{
		Name:      "main",
		Cookie:    "PHPSESSID=12345_abcdefghijkl; p_ab_id=3",
		UserAgent: "TestAgent/1.0",
	}

	if err := manager.Store(account); err != nil {
		t.Fatalf("Failed to store account: %v", err)
	}
	if account.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	retrieved, err := manager.Retrieve("main")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}
	if retrieved.Cookie != account.Cookie {
		t.Errorf("Cookie mismatch: got %s, want %s", retrieved.Cookie, account.Cookie)
	}

	accounts, err := manager.List()
	if err != nil {
		t.Fatalf("Failed to list accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("Expected 1 account, got %d", len(accounts))
	}

	if err := manager.Delete("main"); err != nil {
		t.Errorf("Failed to delete account: %v", err)
	}
	if _, err := manager.Retrieve("main"); err == nil {
		t.Error("Expected error retrieving deleted account")
	}
	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 accounts after deletion, got %d", mockStore.Count())
	}
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	if err := manager.Store(&Account{Cookie: "PHPSESSID=1_a"}); err == nil {
		t.Error("Expected error for missing name")
	}
	if err := manager.Store(&Account{Name: "x"}); err == nil {
		t.Error("Expected error for missing cookie")
	}
}

func TestManagerFallsThroughFailingStore(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	backup := NewMockStore()

	manager := NewManagerWithStores(broken, backup)
	if err := manager.Store(&Account{Name: "a", Cookie: "PHPSESSID=1_a"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !backup.Exists("a") {
		t.Error("account should land in the second store")
	}
}

func TestManagerListNewestFirst(t *testing.T) {
	first := NewMockStore()
	second := NewMockStore()
	now := time.Now()

	_ = first.Store(&Account{Name: "old", Cookie: "c", LastModified: now.Add(-time.Hour)})
	_ = first.Store(&Account{Name: "dup", Cookie: "stale", LastModified: now.Add(-2 * time.Hour)})
	_ = second.Store(&Account{Name: "dup", Cookie: "fresh", LastModified: now})

	manager := NewManagerWithStores(first, second)
	accounts, err := manager.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Name != "dup" || accounts[0].Cookie != "fresh" {
		t.Errorf("Expected fresh dup first, got %+v", accounts[0])
	}

	def, err := manager.RetrieveDefault()
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "dup" {
		t.Errorf("default account = %s, want dup", def.Name)
	}
}

func TestRetrieveDefaultPrefersEnvironment(t *testing.T) {
	t.Setenv(EnvCookie, "PHPSESSID=9_env")
	stored := NewMockStore()
	_ = stored.Store(&Account{Name: "saved", Cookie: "PHPSESSID=1_saved", LastModified: time.Now()})

	manager := NewManagerWithStores(stored, NewEnvironmentStore())
	account, err := manager.RetrieveDefault()
	if err != nil {
		t.Fatal(err)
	}
	if account.Cookie != "PHPSESSID=9_env" {
		t.Errorf("expected environment cookie, got %s", account.Cookie)
	}
}

func TestSanitizeAccount(t *testing.T) {
	account := &Account{Name: "main", Cookie: "PHPSESSID=12345_secretvalue"}
	sanitized := SanitizeAccount(account)

	if sanitized.Cookie == account.Cookie {
		t.Error("Cookie should be masked")
	}
	if !strings.HasPrefix(sanitized.Cookie, "PHPS") || !strings.HasSuffix(sanitized.Cookie, "alue") {
		t.Errorf("unexpected mask %q", sanitized.Cookie)
	}
	if sanitized.Name != account.Name {
		t.Error("Name should not be masked")
	}
	if SanitizeAccount(nil) != nil {
		t.Error("nil account should stay nil")
	}
	if maskString("short") != "********" {
		t.Error("short values should be fully masked")
	}
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(EnvPassphrase, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	account := &Account{Name: "vault_user", Cookie: "PHPSESSID=777_plaintextsecret"}
	if err := store.Store(account); err != nil {
		t.Fatalf("Failed to store in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve("vault_user")
	if err != nil {
		t.Fatalf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.Cookie != account.Cookie {
		t.Errorf("Cookie mismatch after round trip")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(content, []byte("plaintextsecret")) {
		t.Error("File contains plaintext cookie")
	}

	// a second store with the same passphrase reads the same vault
	reopened, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Exists("vault_user") {
		t.Error("reopened store should see the account")
	}

	if err := store.Delete("vault_user"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("vault file should be removed with its last account")
	}
	if err := store.Delete("vault_user"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("expected ErrCredentialsNotFound, got %v", err)
	}
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv(EnvPassphrase, "right")
	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Account{Name: "a", Cookie: "c"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvPassphrase, "wrong")
	other, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Retrieve("a"); err == nil || errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("expected decrypt failure, got %v", err)
	}
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	dir := t.TempDir()

	if _, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	if err != nil {
		t.Fatalf("passphrase file not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("passphrase file is empty")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvCookie, "PHPSESSID=1_env")
	t.Setenv(EnvUserAgent, "EnvAgent/2.0")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if account.Name != "env" {
		t.Errorf("Name = %s, want env", account.Name)
	}
	if account.Cookie != "PHPSESSID=1_env" || account.UserAgent != "EnvAgent/2.0" {
		t.Errorf("unexpected account %+v", account)
	}
	if !store.Exists("anything") {
		t.Error("Exists should report the environment cookie")
	}
	if err := store.Store(&Account{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}

	t.Setenv(EnvCookie, "")
	accounts, _ := store.List()
	if len(accounts) != 0 {
		t.Errorf("expected no accounts without %s", EnvCookie)
	}
}

func TestMockStoreErrorInjection(t *testing.T) {
	store := NewMockStore()
	_ = store.Store(&Account{Name: "m", Cookie: "c"})

	store.ListError = errors.New("injected error")
	if _, err := store.List(); err == nil || err.Error() != "injected error" {
		t.Error("Expected injected error")
	}
	store.DeleteError = errors.New("nope")
	if err := store.Delete("m"); err == nil {
		t.Error("Expected injected delete error")
	}
}

func TestManagerStoreNormalizesCookie(t *testing.T) {
	manager, store := NewMockManager()

	account := &Account{Name: "pasted", Cookie: "Cookie: PHPSESSID=1_abc;\r\n p_ab_id=3\n"}
	if err := manager.Store(account); err != nil {
		t.Fatalf("Store: %v", err)
	}

	saved, err := store.Retrieve("pasted")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Cookie != "PHPSESSID=1_abc; p_ab_id=3" {
		t.Errorf("stored cookie = %q", saved.Cookie)
	}
}

func TestSanitizeMasksEveryValue(t *testing.T) {
	sanitized := SanitizeAccount(&Account{Name: "a", Cookie: "PHPSESSID=12345_secretvalue; device_token=abcdefghijklmnop"})

	want := "PHPSESSID=1234...alue; device_token=abcd...mnop"
	if sanitized.Cookie != want {
		t.Errorf("got %q, want %q", sanitized.Cookie, want)
	}
}

func TestDeleteAllKeepsEnvironmentAccount(t *testing.T) {
	t.Setenv(EnvCookie, "PHPSESSID=9_env")
	stored := NewMockStore()
	_ = stored.Store(&Account{Name: "saved", Cookie: "PHPSESSID=1_saved", LastModified: time.Now()})

	manager := NewManagerWithStores(stored, NewEnvironmentStore())
	if err := manager.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if stored.Count() != 0 {
		t.Errorf("expected stored accounts to be removed, %d left", stored.Count())
	}
}
