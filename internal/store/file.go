package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultPollInterval = 200 * time.Millisecond

// fileDoc is the on-disk layout. The version counter advances on every save
// so sibling processes can detect foreign writes cheaply.
type fileDoc struct {
	Version int64             `json:"version"`
	Entries map[string][]byte `json:"entries"`
}

// FileStore is a durable Handle backed by a JSON file shared between
// processes. Writes go through a temp file and an atomic rename; sibling
// writes are observed by a background watcher that diffs the file against
// the last snapshot this handle saw, so a handle never sees its own writes.
type FileStore struct {
	path     string
	interval time.Duration

	mu       sync.Mutex
	snapshot map[string][]byte
	version  int64
	subs     []chan Change
	closed   bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithPollInterval overrides how often the watcher checks for sibling writes.
func WithPollInterval(d time.Duration) FileOption {
	return func(f *FileStore) {
		if d > 0 {
			f.interval = d
		}
	}
}

// OpenFile opens (creating if needed) the shared store file at path.
func OpenFile(path string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f := &FileStore{
		path:     path,
		interval: defaultPollInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = &fileDoc{Entries: make(map[string][]byte)}
		if err := f.save(doc); err != nil {
			return nil, err
		}
	}
	f.snapshot = doc.Entries
	f.version = doc.Version

	go f.watchLoop()

	log.Debug().Str("path", path).Int64("version", f.version).Msg("store file opened")

	return f, nil
}

func (f *FileStore) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.snapshot[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

func (f *FileStore) Set(key string, value []byte) error {
	return f.mutate(func(entries map[string][]byte) {
		cp := make([]byte, len(value))
		copy(cp, value)
		entries[key] = cp
	})
}

func (f *FileStore) Delete(key string) error {
	return f.mutate(func(entries map[string][]byte) {
		delete(entries, key)
	})
}

func (f *FileStore) Watch() <-chan Change {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Change, watchBuffer)
	if f.closed {
		close(ch)
		return ch
	}
	f.subs = append(f.subs, ch)
	return ch
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.stopCh)
	<-f.doneCh

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
	return nil
}

// mutate performs a read-modify-write against the file and syncs the local
// snapshot in the same critical section, so the watcher does not report this
// write back to us.
func (f *FileStore) mutate(apply func(map[string][]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	doc, err := f.load()
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &fileDoc{Entries: make(map[string][]byte)}
	}

	// A sibling may have written since our last poll; absorb its changes
	// first so they are not lost, then notify as usual.
	if doc.Version != f.version {
		f.emitDiffLocked(doc.Entries)
	}

	apply(doc.Entries)
	doc.Version++

	if err := f.save(doc); err != nil {
		return err
	}

	f.snapshot = doc.Entries
	f.version = doc.Version
	return nil
}

func (f *FileStore) watchLoop() {
	defer close(f.doneCh)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.poll()
		case <-f.stopCh:
			return
		}
	}
}

func (f *FileStore) poll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	doc, err := f.load()
	if err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("failed to poll store file")
		return
	}
	if doc == nil || doc.Version == f.version {
		return
	}

	f.emitDiffLocked(doc.Entries)
	f.snapshot = doc.Entries
	f.version = doc.Version
}

// emitDiffLocked notifies subscribers of every key that differs between the
// current snapshot and entries. Must be called with mu held.
func (f *FileStore) emitDiffLocked(entries map[string][]byte) {
	for key, v := range entries {
		old, ok := f.snapshot[key]
		if !ok || string(old) != string(v) {
			f.notifyLocked(Change{Key: key, Value: v})
		}
	}
	for key := range f.snapshot {
		if _, ok := entries[key]; !ok {
			f.notifyLocked(Change{Key: key, Deleted: true})
		}
	}
}

func (f *FileStore) notifyLocked(c Change) {
	for _, ch := range f.subs {
		select {
		case ch <- c:
		default:
			log.Warn().Str("key", c.Key).Msg("store change dropped for slow subscriber")
		}
	}
}

func (f *FileStore) load() (*fileDoc, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string][]byte)
	}
	return &doc, nil
}

func (f *FileStore) save(doc *fileDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store file: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save store file: %w", err)
	}
	return nil
}
