package secretstore

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Store is a small encrypted-at-rest KV wrapper (Badger) holding venue
// credentials, most importantly the Ed25519 signing seed.
// Encryption is provided by Badger options, not by this wrapper.
type Store struct {
	db *badger.DB
}

// KeySigningSeed is the well-known entry holding the Ed25519 seed.
const KeySigningSeed = "venue/signing_seed"

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; if nil, DB is opened without encryption (not recommended)
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires index cache for encrypted workloads
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Set stores a raw value under key.
func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get returns the value stored under key, or an error if absent.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("secretstore: key %q not found", key)
	}
	return out, err
}

// SigningKey loads and decodes the Ed25519 private key. The stored value
// may be a 32-byte seed or a 64-byte private key, hex or base64 encoded.
func (s *Store) SigningKey() (ed25519.PrivateKey, error) {
	raw, err := s.Get(KeySigningSeed)
	if err != nil {
		return nil, err
	}
	return DecodeSigningKey(string(raw))
}

// ParseKey decodes a Badger encryption key from hex or base64 text.
// Empty input yields nil (no encryption).
func ParseKey(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var raw []byte
	if b, err := hex.DecodeString(text); err == nil {
		raw = b
	} else if b, err := base64.StdEncoding.DecodeString(text); err == nil {
		raw = b
	} else {
		raw = []byte(text)
	}
	switch len(raw) {
	case 16, 24, 32:
		return raw, nil
	default:
		return nil, fmt.Errorf("secretstore: encryption key must be 16/24/32 bytes, got %d", len(raw))
	}
}

// DecodeSigningKey parses an Ed25519 key from hex or base64 text.
func DecodeSigningKey(text string) (ed25519.PrivateKey, error) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "0x"))
	if text == "" {
		return nil, errors.New("secretstore: empty signing key")
	}
	var raw []byte
	if b, err := hex.DecodeString(text); err == nil {
		raw = b
	} else if b, err := base64.StdEncoding.DecodeString(text); err == nil {
		raw = b
	} else {
		return nil, errors.New("secretstore: signing key is neither hex nor base64")
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("secretstore: bad key length %d", len(raw))
	}
}
