package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	logPath    = "logs/synthesis.log"
	logEnabled = true
	mu         sync.RWMutex
)

// SetLogPath configures the path for the synthesis log file.
func SetLogPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	logPath = path
}

// SetEnabled toggles synthesis logging.
func SetEnabled(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	logEnabled = enabled
}

// Log appends a synthesis request and its outcome to the configured log file.
// This is a shared helper for all providers to ensure consistent debugging
// visibility. Logging failures are silently ignored.
func Log(provider, voice, text string, err error) {
	mu.RLock()
	path := logPath
	enabled := logEnabled
	mu.RUnlock()

	if !enabled {
		return
	}

	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, fileErr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if fileErr != nil {
		return
	}
	defer f.Close()

	status := "OK"
	if err != nil {
		status = fmt.Sprintf("ERROR(%v)", err)
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	entry := fmt.Sprintf("[%s] [%s] VOICE: %s STATUS: %s\nTEXT:\n%s\n--------------------------------------------------\n",
		timestamp, provider, voice, status, text)

	_, _ = f.WriteString(entry)
}
