package provision

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

const (
	// privateKeyMode is owner read/write only.
	privateKeyMode os.FileMode = 0o600
	// publicKeyMode is owner write, world read.
	publicKeyMode os.FileMode = 0o644
)

// KeypairStep generates the host's SSH identity.
//
// An existing private key is never overwritten: replacing it would
// invalidate already-distributed public-key trust. The public key is
// appended to the authorized-keys file, never replacing other entries.
type KeypairStep struct {
	// PrivateKeyPath is where the private key lives; the public key is
	// written next to it with a .pub suffix.
	PrivateKeyPath string
	// AuthorizedKeysPath optionally receives an appended copy of the
	// public key when set.
	AuthorizedKeysPath string
	// Comment labels the generated key.
	Comment string
}

// NewKeypairStep builds the step.
func NewKeypairStep(privateKeyPath, authorizedKeysPath, comment string) *KeypairStep {
	return &KeypairStep{
		PrivateKeyPath:     privateKeyPath,
		AuthorizedKeysPath: authorizedKeysPath,
		Comment:            comment,
	}
}

// Name identifies the step.
func (s *KeypairStep) Name() string {
	return "ssh-keypair"
}

// PublicKeyPath returns the sibling .pub path.
func (s *KeypairStep) PublicKeyPath() string {
	return s.PrivateKeyPath + ".pub"
}

// Detect reports Present when a private key already exists.
func (s *KeypairStep) Detect(_ context.Context) (State, error) {
	if _, err := os.Stat(s.PrivateKeyPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StateAbsent, nil
		}

		return StateAbsent, err
	}

	return StatePresent, nil
}

// Apply generates an ed25519 keypair and appends the public key to the
// authorized-keys file.
func (s *KeypairStep) Apply(_ context.Context) error {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(privateKey, s.Comment)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(s.PrivateKeyPath), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	if err = os.WriteFile(s.PrivateKeyPath, pem.EncodeToMemory(block), privateKeyMode); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	sshPublicKey, err := ssh.NewPublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	authorizedKey := ssh.MarshalAuthorizedKey(sshPublicKey)
	if s.Comment != "" {
		// MarshalAuthorizedKey emits "<type> <base64>\n" without a
		// comment field; label the entry so operators can tell keys apart.
		authorizedKey = append(bytes.TrimRight(authorizedKey, "\n"), []byte(" "+s.Comment+"\n")...)
	}

	if err = os.WriteFile(s.PublicKeyPath(), authorizedKey, publicKeyMode); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	if s.AuthorizedKeysPath == "" {
		return nil
	}

	return appendAuthorizedKey(s.AuthorizedKeysPath, authorizedKey)
}

// appendAuthorizedKey adds the key to the target account's authorized-keys
// file without touching other already-authorized entries.
func appendAuthorizedKey(path string, authorizedKey []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create authorized-keys directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, privateKeyMode)
	if err != nil {
		return fmt.Errorf("open authorized keys: %w", err)
	}

	if _, err = file.Write(authorizedKey); err != nil {
		_ = file.Close()

		return fmt.Errorf("append authorized key: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close authorized keys: %w", err)
	}

	return nil
}
