package repofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-blog-client/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store that counts calls.
type FakeStore struct {
	creds  *credentials.Credentials
	lock   sync.RWMutex
	saves  int
	clears int

	// LoadErr, when set, is returned by every Load.
	LoadErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// NewFakeStoreWith returns a store preloaded with an access/refresh pair that never expires.
func NewFakeStoreWith(accessToken, refreshToken string) *FakeStore {
	return &FakeStore{
		creds: &credentials.Credentials{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		},
	}
}

func (s *FakeStore) Load(_ context.Context) (*credentials.Credentials, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.creds == nil {
		return nil, credentials.ErrNoCredentials
	}
	c := *s.creds
	return &c, nil
}

func (s *FakeStore) Save(_ context.Context, creds *credentials.Credentials) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	c := *creds
	s.creds = &c
	s.saves++
	return nil
}

func (s *FakeStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.creds = nil
	s.clears++
	return nil
}

func (s *FakeStore) Saves() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.saves
}

func (s *FakeStore) Clears() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.clears
}
