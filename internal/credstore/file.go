package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps the token pair in a single file, sealed with a
// passphrase-derived key. The passphrase is a machine-local secret, not a
// user password; the point is that tokens never hit disk in plaintext.
type FileStore struct {
	path       string
	passphrase string
}

func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

// DefaultPath places the credential file under the user config dir,
// creating the directory if needed.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	dir := filepath.Join(base, "chatlink")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return filepath.Join(dir, "credentials"), nil
}

func (f *FileStore) Save(creds Credentials) error {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	sealed, err := seal(f.passphrase, plaintext)
	if err != nil {
		return fmt.Errorf("sealing credentials: %w", err)
	}
	return os.WriteFile(f.path, sealed, 0o600)
}

func (f *FileStore) Load() (Credentials, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, err
	}

	plaintext, err := open(f.passphrase, data)
	if err != nil {
		return Credentials{}, false, err
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return Credentials{}, false, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	return creds, true, nil
}

func (f *FileStore) Delete() error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
