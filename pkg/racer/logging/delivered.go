package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// DeliveredEntry is one line of the append-only delivered-message log:
// the record spec.md §6 requires the delivered-log sink to be invoked
// with, plus the monotonic per-node sequence number the sink itself
// assigns.
type DeliveredEntry struct {
	Seq         uint64      `json:"seq"`
	BatchID     string      `json:"batch_id"`
	CreatorHex  string      `json:"creator_hex"`
	ContentRoot string      `json:"content_root"`
	Size        int         `json:"size"`
	Payloads    interface{} `json:"payloads"`
	DeliveredAt string      `json:"delivered_at"`
}

// DeliveredLogger is the delivered-log sink consumed by the engine: an
// append-only JSON-lines writer under logs/{node_id}/{file}, run on its
// own goroutine so a slow disk never blocks the engine's delivery path.
type DeliveredLogger struct {
	seq    uint64
	lines  chan string
	done   chan struct{}
	log    Logger
	closer sync.Once
}

// NewDeliveredLogger creates the log directory (from LogDirFor-expanded
// dir) if needed, opens file in append mode, and starts the writer
// goroutine. Returns nil and an error if the directory or file cannot
// be prepared.
func NewDeliveredLogger(dir, file string, log Logger) (*DeliveredLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}

	d := &DeliveredLogger{
		lines: make(chan string, 100),
		done:  make(chan struct{}),
		log:   log,
	}
	go d.writeLoop(f, path)
	return d, nil
}

func (d *DeliveredLogger) writeLoop(f *os.File, path string) {
	defer close(d.done)
	defer f.Close()
	w := bufio.NewWriter(f)
	for line := range d.lines {
		if _, err := w.WriteString(line); err != nil {
			if d.log != nil {
				d.log.Warnf("delivered logger: write to %s: %v", path, err)
			}
			continue
		}
		if err := w.Flush(); err != nil && d.log != nil {
			d.log.Warnf("delivered logger: flush %s: %v", path, err)
		}
	}
}

// Log appends one delivered-batch record, assigning it the next
// monotonic sequence number. batchID, creatorHex, and contentRoot are
// the identifying fields of the delivered batch; payloads is whatever
// the caller wants recorded verbatim (typically the raw payload list).
func (d *DeliveredLogger) Log(batchID, creatorHex, contentRoot string, size int, payloads interface{}) uint64 {
	seq := atomic.AddUint64(&d.seq, 1)
	entry := DeliveredEntry{
		Seq:         seq,
		BatchID:     batchID,
		CreatorHex:  creatorHex,
		ContentRoot: contentRoot,
		Size:        size,
		Payloads:    payloads,
		DeliveredAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		if d.log != nil {
			d.log.Warnf("delivered logger: marshal entry %d: %v", seq, err)
		}
		return seq
	}
	line := string(raw) + "\n"
	select {
	case d.lines <- line:
	default:
		if d.log != nil {
			d.log.Warnf("delivered logger: write queue full, dropping entry %d", seq)
		}
	}
	return seq
}

// CurrentSeq returns the most recently assigned sequence number.
func (d *DeliveredLogger) CurrentSeq() uint64 {
	return atomic.LoadUint64(&d.seq)
}

// Close stops the writer goroutine and flushes pending entries. Safe to
// call more than once.
func (d *DeliveredLogger) Close() {
	d.closer.Do(func() {
		close(d.lines)
		<-d.done
	})
}
