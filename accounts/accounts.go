// Package accounts loads the set of dashboard accounts the scraper operates
// on. Accounts come from a YAML file; a single account can also be supplied
// through SENDERWATCH_EMAIL / SENDERWATCH_PASSWORD for one-off runs.
package accounts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvEmail and EnvPassword are the environment fallback for a single account
// when no accounts file is present.
const (
	EnvEmail    = "SENDERWATCH_EMAIL"
	EnvPassword = "SENDERWATCH_PASSWORD"
)

// ErrNoAccounts is returned when neither the file nor the environment yields
// a usable account. The caller must treat this as fatal: with no accounts
// there is nothing to supervise.
var ErrNoAccounts = errors.New("accounts: no enabled accounts configured")

// Account is one dashboard login. Immutable for the process lifetime.
type Account struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"name"`
	Enabled     bool   `yaml:"-"`
}

// file is the on-disk shape. Enabled defaults to true when omitted, which a
// plain bool field cannot express, hence the pointer.
type fileAccount struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Enabled  *bool  `yaml:"enabled"`
}

type accountsFile struct {
	Accounts []fileAccount `yaml:"accounts"`
}

// Load reads the accounts file at path and returns the enabled accounts.
// If path is empty or the file does not exist, the environment fallback is
// tried. An empty result is ErrNoAccounts.
func Load(path string) ([]Account, error) {
	var out []Account

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var f accountsFile
			if err := yaml.Unmarshal(data, &f); err != nil {
				return nil, fmt.Errorf("accounts: parse %s: %w", path, err)
			}
			for i, fa := range f.Accounts {
				a := Account{
					Email:       strings.TrimSpace(fa.Email),
					Password:    fa.Password,
					DisplayName: fa.Name,
					Enabled:     fa.Enabled == nil || *fa.Enabled,
				}
				if err := a.validate(); err != nil {
					return nil, fmt.Errorf("accounts: entry %d: %w", i, err)
				}
				if a.Enabled {
					out = append(out, a)
				}
			}
		case os.IsNotExist(err):
			// Fall through to the environment.
		default:
			return nil, fmt.Errorf("accounts: read %s: %w", path, err)
		}
	}

	if len(out) == 0 {
		if a, ok := fromEnv(); ok {
			out = append(out, a)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoAccounts
	}
	if err := checkUnique(out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromEnv() (Account, bool) {
	email := strings.TrimSpace(os.Getenv(EnvEmail))
	password := os.Getenv(EnvPassword)
	if email == "" || password == "" {
		return Account{}, false
	}
	return Account{
		Email:       email,
		Password:    password,
		DisplayName: "Env Account",
		Enabled:     true,
	}, true
}

func (a Account) validate() error {
	if a.Email == "" {
		return errors.New("email is required")
	}
	if !strings.Contains(a.Email, "@") {
		return fmt.Errorf("invalid email %q", a.Email)
	}
	if a.Password == "" {
		return fmt.Errorf("account %s: password is required", a.Email)
	}
	return nil
}

func checkUnique(accts []Account) error {
	seen := make(map[string]bool, len(accts))
	for _, a := range accts {
		if seen[a.Email] {
			return fmt.Errorf("accounts: duplicate email %s", a.Email)
		}
		seen[a.Email] = true
	}
	return nil
}
