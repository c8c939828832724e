package service

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"inkwell/app/config"
)

// loadConfig is replaced in tests.
var loadConfig = config.Load

// badgerPath returns the configured database directory, or an error when
// the service is not backed by badger.
func badgerPath() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.DBDriver != config.DriverBadger {
		return "", fmt.Errorf("database commands need INKWELL_DB_DRIVER=%s, got %s", config.DriverBadger, cfg.DBDriver)
	}
	return cfg.DBPath, nil
}

func backupDir(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "backups")
}

func openBadger(dbPath string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// confirm asks a yes/no question on stdin. Anything but y or Y is a no.
func confirm(question string) bool {
	fmt.Print(question + " [y/N] ")
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "Y"
}
