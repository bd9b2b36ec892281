package config

import (
	"os"
	"path/filepath"
)

const keyringServiceVar = "KEYRING_SERVICE"

type Storage struct{}

var _ StorageConfig = Storage{}

// GetDataFolder returns the directory for locally persisted state
// (credential fallback store, artifact cache, chat transcripts).
func (Storage) GetDataFolder() string {
	if folder := GetEnv(folderEnvVar, ""); folder != "" {
		return folder
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".revisely")
}

// GetKeyringService is the service name under which credentials are filed
// in the operating system keychain.
func (Storage) GetKeyringService() string {
	return GetEnv(keyringServiceVar, "revisely")
}
