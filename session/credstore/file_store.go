package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the credential pair in a mode-0600 JSON file, written
// atomically via rename so a crash mid-save never leaves a partial pair on
// disk.
type FileStore struct {
	path string
	lock sync.Mutex
}

// NewFileStore creates a FileStore at path. Parent directories are created
// on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Load() (*Credentials, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "[FileStore.Load] read credentials file")
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, errors.Wrap(err, "[FileStore.Load] decode credentials file")
	}
	if creds.Access == "" || creds.Refresh == "" {
		return nil, ErrNotFound
	}
	return &creds, nil
}

func (fs *FileStore) Save(creds Credentials) error {
	if creds.Access == "" || creds.Refresh == "" {
		return ErrPartialPair
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.Save] create credentials dir")
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "[FileStore.Save] encode credentials")
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.Save] write temp file")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "[FileStore.Save] replace credentials file")
	}
	return nil
}

func (fs *FileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] remove credentials file")
	}
	return nil
}
