package storefake

import (
	"sync"

	"github.com/campuslink/go-campus-client/session/credstore"
)

var _ credstore.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credstore.Store for tests.
type FakeStore struct {
	lock  sync.Mutex
	creds *credstore.Credentials

	SaveCalls  int
	ClearCalls int
	FailSave   error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// Seed pre-populates the store, as if a previous session persisted the pair.
func (fs *FakeStore) Seed(access, refresh string) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.creds = &credstore.Credentials{Access: access, Refresh: refresh}
}

func (fs *FakeStore) Load() (*credstore.Credentials, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.creds == nil {
		return nil, credstore.ErrNotFound
	}
	copied := *fs.creds
	return &copied, nil
}

func (fs *FakeStore) Save(creds credstore.Credentials) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.SaveCalls++
	if fs.FailSave != nil {
		return fs.FailSave
	}
	if creds.Access == "" || creds.Refresh == "" {
		return credstore.ErrPartialPair
	}
	fs.creds = &creds
	return nil
}

func (fs *FakeStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.ClearCalls++
	fs.creds = nil
	return nil
}

// Stored returns the currently persisted pair, or nil.
func (fs *FakeStore) Stored() *credstore.Credentials {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.creds == nil {
		return nil
	}
	copied := *fs.creds
	return &copied
}
