package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"p2pmsg/internal/config"
	"p2pmsg/internal/connection"
	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
	"p2pmsg/internal/events"
	"p2pmsg/internal/store"
	"p2pmsg/internal/vault"
)

// App is the CLI's dependency graph. New builds everything that does not
// need an open vault; Unlock finishes wiring the identity-dependent
// pieces (message log, event bus, connection manager) once a passphrase
// has been accepted.
type App struct {
	Home   string
	Config config.Config
	Log    zerolog.Logger
	Vault  *vault.Vault

	Identity domain.Identity
	Store    *store.Store
	Bus      *events.Bus
	Manager  *connection.Manager

	unlocked bool
}

// New returns an App rooted at home, loading config from
// home/config.toml if present and defaulting every option spec §4.I
// does not override.
func New(home string) (*App, error) {
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, fmt.Errorf("app: create home dir: %w", err)
	}

	cfg, err := config.Load(filepath.Join(home, "config.toml"))
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	log := newLogger(home)

	v, err := vault.New(filepath.Join(home, "vault"), crypto.Argon2Params{
		TimeCost:    cfg.Argon2TimeCost,
		MemoryKiB:   cfg.Argon2MemoryKiB,
		Parallelism: cfg.Argon2Parallelism,
	})
	if err != nil {
		return nil, err
	}

	return &App{Home: home, Config: cfg, Log: log, Vault: v}, nil
}

func newLogger(home string) zerolog.Logger {
	logDir := filepath.Join(home, "logs")
	_ = os.MkdirAll(logDir, 0o700)
	f, err := os.OpenFile(filepath.Join(logDir, "p2pmsg.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(f).With().Timestamp().Logger()
}

// Initialize creates a fresh vault under passphrase and finishes wiring
// the app around the resulting identity.
func (a *App) Initialize(passphrase string) (domain.Identity, error) {
	id, err := a.Vault.Initialize(passphrase)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := a.finishUnlock(id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// Unlock opens the vault under passphrase and finishes wiring the app.
func (a *App) Unlock(passphrase string) error {
	id, err := a.Vault.Open(passphrase)
	if err != nil {
		return err
	}
	return a.finishUnlock(id)
}

func (a *App) finishUnlock(id domain.Identity) error {
	a.Identity = id

	st, err := store.Open(filepath.Join(a.Home, "log", "messages.db"), filepath.Join(a.Home, "files"), id.SigningPriv)
	if err != nil {
		return err
	}
	a.Store = st

	a.Bus = events.New(a.Log, 64)
	a.Manager = connection.New(a.Config, id, a.Vault, a.Store, a.Bus, a.Log)
	a.unlocked = true
	return nil
}

// Unlocked reports whether Initialize or Unlock has succeeded.
func (a *App) Unlocked() bool { return a.unlocked }

// Fingerprint returns the local identity's fingerprint. Unlock must have
// succeeded first.
func (a *App) Fingerprint() domain.Fingerprint {
	return crypto.Fingerprint(a.Identity.SigningPub)
}

// Close releases the message log and event bus. It is safe to call on an
// App that was never unlocked.
func (a *App) Close() error {
	if a.Manager != nil {
		a.Manager.Stop()
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
