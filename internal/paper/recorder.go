package paper

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// JSONLRecorder streams fills to disk, one JSON document per line, so a
// replay's executions can be inspected with standard line tools. Writes are
// buffered; Close flushes.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// NewJSONLRecorder opens path for appending, creating parent directories as
// needed.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{file: file, buf: bufio.NewWriter(file)}, nil
}

// Record writes one fill as a JSON line. A marshal failure drops the fill;
// the recorder is a best-effort sink and never blocks trading.
func (r *JSONLRecorder) Record(fill Fill) {
	line, err := json.Marshal(fill)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	_, _ = r.buf.Write(line)
	_ = r.buf.WriteByte('\n')
}

// Close flushes buffered lines and releases the file. Safe to call twice.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	flushErr := r.buf.Flush()
	closeErr := r.file.Close()
	r.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
