package accounts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeAccountsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeAccountsFile(t, `
accounts:
  - email: one@example.com
    password: secret1
    name: First
  - email: two@example.com
    password: secret2
    enabled: true
`)
	accts, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(accts) != 2 {
		t.Fatalf("accounts: got %d, want 2", len(accts))
	}
	if accts[0].Email != "one@example.com" || accts[0].DisplayName != "First" {
		t.Errorf("first account: %+v", accts[0])
	}
	if !accts[0].Enabled {
		t.Error("enabled should default to true when omitted")
	}
}

func TestLoadSkipsDisabled(t *testing.T) {
	path := writeAccountsFile(t, `
accounts:
  - email: on@example.com
    password: p
  - email: off@example.com
    password: p
    enabled: false
`)
	accts, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(accts) != 1 || accts[0].Email != "on@example.com" {
		t.Fatalf("got %+v, want only the enabled account", accts)
	}
}

func TestLoadAllDisabledIsNoAccounts(t *testing.T) {
	path := writeAccountsFile(t, `
accounts:
  - email: off@example.com
    password: p
    enabled: false
`)
	_, err := Load(path)
	if !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("got %v, want ErrNoAccounts", err)
	}
}

func TestLoadRejectsInvalidEntries(t *testing.T) {
	for name, content := range map[string]string{
		"missing email":    "accounts:\n  - password: p\n",
		"missing password": "accounts:\n  - email: a@example.com\n",
		"bad email":        "accounts:\n  - email: nope\n    password: p\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeAccountsFile(t, content)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadRejectsDuplicateEmails(t *testing.T) {
	path := writeAccountsFile(t, `
accounts:
  - email: dup@example.com
    password: p1
  - email: dup@example.com
    password: p2
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv(EnvEmail, "env@example.com")
	t.Setenv(EnvPassword, "envpass")

	accts, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(accts) != 1 || accts[0].Email != "env@example.com" {
		t.Fatalf("got %+v, want env account", accts)
	}
}

func TestLoadNothingConfigured(t *testing.T) {
	t.Setenv(EnvEmail, "")
	t.Setenv(EnvPassword, "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("got %v, want ErrNoAccounts", err)
	}
}
