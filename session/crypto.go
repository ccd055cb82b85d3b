package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize      = 32
	saltSize     = 16
	iterations   = 100000
	sealedPrefix = "enc:v1:"
	// Derived keys kept per salt. Values written by one process share a salt,
	// so the cache only grows with files written by other processes.
	maxCachedKeys = 16
)

// sealer encrypts session values with AES-GCM under a passphrase-derived key.
// Each value carries its salt; one process seals everything under one salt and
// a fresh nonce, so PBKDF2 runs once per salt rather than once per read.
type sealer struct {
	passphrase []byte

	mu          sync.Mutex
	salt        []byte
	keys        map[string]cipher.AEAD
	derivations int
}

func newSealer(passphrase string) (*sealer, error) {
	if passphrase == "" {
		return nil, errors.New("session: passphrase cannot be empty")
	}
	return &sealer{passphrase: []byte(passphrase)}, nil
}

func (s *sealer) gcm(salt []byte) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if aead, ok := s.keys[string(salt)]; ok {
		return aead, nil
	}
	key := pbkdf2.Key(s.passphrase, salt, iterations, keySize, sha256.New)
	s.derivations++
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if s.keys == nil || len(s.keys) >= maxCachedKeys {
		s.keys = make(map[string]cipher.AEAD)
	}
	s.keys[string(salt)] = aead
	return aead, nil
}

// sealSalt returns the salt this process seals under, drawing it on first use.
func (s *sealer) sealSalt() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.salt == nil {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
		s.salt = salt
	}
	return s.salt, nil
}

func (s *sealer) seal(plain string) (string, error) {
	salt, err := s.sealSalt()
	if err != nil {
		return "", err
	}
	gcm, err := s.gcm(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := append(append([]byte(nil), salt...), nonce...)
	out = gcm.Seal(out, nonce, []byte(plain), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

func (s *sealer) open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", errors.New("value is not encrypted")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", err
	}
	if len(data) < saltSize {
		return "", errors.New("ciphertext too short")
	}
	salt, rest := data[:saltSize], data[saltSize:]
	gcm, err := s.gcm(salt)
	if err != nil {
		return "", err
	}
	if len(rest) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
