// Package vault persists the credential bundle under password-derived
// encryption. The bundle plaintext is CBOR; the sealed record carries its own
// salt and nonce so every save is independently decryptable.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// RecordVersion is the only sealed record format this build reads.
	RecordVersion = 1

	kdfIterations = 150000
	saltSize      = 16
	nonceSize     = 12
	keySize       = 32
)

var (
	// ErrLocked deliberately does not distinguish a wrong password from a
	// corrupted record; doing so would hand an attacker a guessing oracle.
	ErrLocked = errors.New("vault: invalid password or corrupted data")

	ErrVersion = errors.New("vault: unsupported record version")
)

// Bundle is the decrypted credential set. The vault owns it only while
// sealing or opening; callers hold it for the lifetime of a session.
type Bundle struct {
	GroupCredential string   `cbor:"group"`
	ShareCredential string   `cbor:"share"`
	Relays          []string `cbor:"relays"`
	Label           string   `cbor:"label,omitempty"`
}

// Record is the durable encrypted form of a Bundle.
type Record struct {
	Version    int       `json:"version"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"createdAt"`
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfIterations, keySize, sha256.New)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts b under password with a fresh salt and nonce.
func Seal(password string, b *Bundle) (*Record, error) {
	if b == nil || b.GroupCredential == "" || b.ShareCredential == "" {
		return nil, errors.New("vault: bundle missing credentials")
	}
	plaintext, err := cbor.Marshal(b)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	aead, err := newAEAD(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	return &Record{
		Version:    RecordVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Open decrypts rec with password. Unknown record versions are rejected
// before any key derivation; every authentication or decode failure after
// that collapses into ErrLocked.
func Open(password string, rec *Record) (*Bundle, error) {
	if rec == nil {
		return nil, ErrLocked
	}
	if rec.Version != RecordVersion {
		return nil, ErrVersion
	}
	if len(rec.Salt) != saltSize || len(rec.Nonce) != nonceSize {
		return nil, ErrLocked
	}
	aead, err := newAEAD(deriveKey(password, rec.Salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, rec.Nonce, rec.Ciphertext, nil)
	if err != nil {
		return nil, ErrLocked
	}
	b := new(Bundle)
	if err := cbor.Unmarshal(plaintext, b); err != nil {
		return nil, ErrLocked
	}
	return b, nil
}
