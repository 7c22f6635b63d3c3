package credentials

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	apperrors "github.com/jrsteele09/go-blog-client/internal/errors"
)

var fileMagic = []byte("BLOGSESS1")

const (
	saltSize = 16

	// argon2id parameters for a passphrase typed at a terminal.
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

// FileStore keeps the credential pair in a single encrypted file.
// Layout: magic | salt | nonce | XChaCha20-Poly1305(JSON credentials).
//
// The argon2id key is derived once per salt and cached; Save reuses the cached
// salt with a fresh nonce, so only the first Load or Save pays for the derivation.
type FileStore struct {
	path       string
	passphrase []byte
	nowFunc    func() time.Time
	mu         sync.Mutex

	keyMu       sync.Mutex
	salt        []byte
	derivedKey  []byte
	derivations int
}

// NewFileStore creates a store at path encrypted with passphrase.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	if path == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "NewFileStore: empty path")
	}
	if passphrase == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "NewFileStore: empty passphrase")
	}
	return &FileStore{
		path:       path,
		passphrase: []byte(passphrase),
		nowFunc:    time.Now,
	}, nil
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) Load(_ context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "FileStore.Load ReadFile")
	}

	plain, err := s.open(raw)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, errors.Wrap(apperrors.ErrCorruptSession, err.Error())
	}

	pruned := creds.Prune(s.nowFunc())
	if pruned == nil {
		return nil, ErrNoCredentials
	}
	return pruned, nil
}

func (s *FileStore) Save(_ context.Context, creds *Credentials) error {
	if creds == nil {
		return errors.New("FileStore.Save: nil credentials")
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "FileStore.Save Marshal")
	}

	sealed, err := s.seal(plain)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "FileStore.Save MkdirAll")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return errors.Wrap(err, "FileStore.Save WriteFile")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "FileStore.Save Rename")
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "FileStore.Clear Remove")
	}
	return nil
}

// key returns the key for salt, deriving it only when salt differs from the cached one.
func (s *FileStore) key(salt []byte) []byte {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if s.derivedKey != nil && bytes.Equal(s.salt, salt) {
		return s.derivedKey
	}
	s.salt = append([]byte(nil), salt...)
	s.derivedKey = argon2.IDKey(s.passphrase, s.salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	s.derivations++
	return s.derivedKey
}

// sealSalt returns the cached salt, or a new random one when none is cached yet.
func (s *FileStore) sealSalt() ([]byte, error) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if s.salt != nil {
		return s.salt, nil
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "FileStore.seal rand.Read")
	}
	return salt, nil
}

func (s *FileStore) seal(plain []byte) ([]byte, error) {
	salt, err := s.sealSalt()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "FileStore.seal rand.Read")
	}

	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return nil, errors.Wrap(err, "FileStore.seal NewX")
	}

	out := make([]byte, 0, len(fileMagic)+len(salt)+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, fileMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, fileMagic), nil
}

func (s *FileStore) open(raw []byte) ([]byte, error) {
	header := len(fileMagic) + saltSize + chacha20poly1305.NonceSizeX
	if len(raw) < header || !bytes.Equal(raw[:len(fileMagic)], fileMagic) {
		return nil, apperrors.ErrCorruptSession
	}

	salt := raw[len(fileMagic) : len(fileMagic)+saltSize]
	nonce := raw[len(fileMagic)+saltSize : header]

	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return nil, errors.Wrap(err, "FileStore.open NewX")
	}

	plain, err := aead.Open(nil, nonce, raw[header:], fileMagic)
	if err != nil {
		return nil, apperrors.ErrCorruptSession
	}
	return plain, nil
}
