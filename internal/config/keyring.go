package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups jobtrack's secrets in the OS keychain.
const KeyringService = "jobtrack"

const sessionTokenAccount = "session_token"

// SecretStore is the subset of the OS keychain that config needs.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

func (osKeyring) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

func (osKeyring) Delete(service, account string) error {
	return keyring.Delete(service, account)
}

// NewKeychain returns the platform keychain (macOS Keychain, Secret Service
// on Linux, Credential Manager on Windows).
func NewKeychain() SecretStore { return osKeyring{} }

// GetSessionToken returns the CLI's saved bearer token, or "" when none is
// stored.
func GetSessionToken(s SecretStore) (string, error) {
	tok, err := s.Get(KeyringService, sessionTokenAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(tok), nil
}

func SetSessionToken(s SecretStore, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("session token is empty")
	}
	return s.Set(KeyringService, sessionTokenAccount, token)
}

// DeleteSessionToken forgets the saved token. A missing token is not an
// error.
func DeleteSessionToken(s SecretStore) error {
	err := s.Delete(KeyringService, sessionTokenAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
