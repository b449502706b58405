package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/docassistant/docassistant/pkg/apperrors"
)

// UsersDB is a local, bcrypt-hashed JSON credential file. It is
// intentionally simple: the original system authenticates against a
// small fixed operator roster, not a multi-tenant identity provider.
type UsersDB struct {
	path string

	mu    sync.Mutex
	users map[string]string // username -> bcrypt hash
}

// LoadUsersDB reads the credential file at path. A missing file yields
// an empty database; the file is first written by AddUser.
func LoadUsersDB(path string) (*UsersDB, error) {
	db := &UsersDB{path: path, users: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, fmt.Errorf("failed to read users database: %w", err)
	}

	if err := json.Unmarshal(data, &db.users); err != nil {
		return nil, fmt.Errorf("failed to parse users database: %w", err)
	}
	return db, nil
}

// Verify checks a plaintext password against the stored hash for
// username.
func (db *UsersDB) Verify(username, password string) error {
	db.mu.Lock()
	hash, ok := db.users[username]
	db.mu.Unlock()

	if !ok {
		return apperrors.Unauthorizedf("unknown user %q", username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperrors.Unauthorizedf("invalid credentials for user %q", username)
	}
	return nil
}

// AddUser hashes password and adds username, failing if it already
// exists.
func (db *UsersDB) AddUser(username, password string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.users[username]; exists {
		return apperrors.AlreadyExistsf("user %q", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	db.users[username] = string(hash)
	return db.save()
}

// RemoveUser deletes a user from the credential file.
func (db *UsersDB) RemoveUser(username string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.users[username]; !exists {
		return apperrors.NotFoundf("user %q", username)
	}
	delete(db.users, username)
	return db.save()
}

// ListUsernames returns every known username.
func (db *UsersDB) ListUsernames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.users))
	for name := range db.users {
		names = append(names, name)
	}
	return names
}

// save persists the credential map with restricted permissions; must
// be called with db.mu held.
func (db *UsersDB) save() error {
	if err := os.MkdirAll(filepath.Dir(db.path), 0755); err != nil {
		return fmt.Errorf("failed to create users database directory: %w", err)
	}

	data, err := json.MarshalIndent(db.users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal users database: %w", err)
	}

	return os.WriteFile(db.path, data, 0600)
}
