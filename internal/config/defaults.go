package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	maxConcurrentDownloads = 3
	rangeLength            = 8192
	connectTimeout         = 30 * time.Second
	inactivityTimeout      = 180 * time.Second
	reconnectDelay         = 3 * time.Second
	stateFileName          = "state.db"
)

var downloadDir = xdg.UserDirs.Download

func stateDB() string {
	return filepath.Join(xdg.StateHome, configFileName, stateFileName)
}
