// Package passphrase resolves keystore secrets for the daemon, preferring an
// environment variable and falling back to an interactive terminal prompt.
package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves the odds-signer keystore passphrase exactly once and caches
// the outcome, so every keystore open in a process sees the same secret.
type Source struct {
	envVar string

	once   sync.Once
	secret string
	err    error
}

// NewSource builds a source that consults envVar before prompting.
func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar)}
}

// Get returns the resolved passphrase. The first call does the work; later
// calls return the cached result. Whitespace-only secrets are rejected so a
// misconfigured environment never yields an unprotected keystore.
func (s *Source) Get() (string, error) {
	s.once.Do(func() { s.secret, s.err = s.resolve() })
	return s.secret, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if s.envVar != "" {
			return "", fmt.Errorf("signer keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("signer keystore passphrase required and no terminal available")
	}

	fmt.Fprint(os.Stderr, "Enter odds signer keystore passphrase: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("signer keystore passphrase cannot be empty")
	}
	return string(raw), nil
}
