package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"market-sentinel/src/models"

	"github.com/google/uuid"
)

// FileRecord is one line of the alert log.
type FileRecord struct {
	AlertID  string             `json:"alert_id"`
	Ts       string             `json:"ts"`
	Type     models.SignalKind  `json:"type"`
	Symbol   string             `json:"symbol"`
	Price    float64            `json:"price"`
	Message  string             `json:"message"`
	Metadata map[string]float64 `json:"metadata"`
}

// -----------------------------------------------------------------------------

// FileChannel appends signals as JSON lines. The parent directory is created
// on the first send.
type FileChannel struct {
	Path string
	mu   sync.Mutex
}

func NewFileChannel(path string) *FileChannel {
	return &FileChannel{Path: path}
}

func (f *FileChannel) Name() string { return "file" }

// -----------------------------------------------------------------------------

func (f *FileChannel) Send(signal models.MSignal) error {
	record := FileRecord{
		AlertID:  uuid.NewString(),
		Ts:       signal.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:     signal.Kind,
		Symbol:   signal.Symbol,
		Price:    signal.Price,
		Message:  signal.Message,
		Metadata: signal.Metadata,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create alert directory: %w", err)
		}
	}

	file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open alert file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}
