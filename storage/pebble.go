package storage

import (
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

const (
	// defaultSyncInterval is the default interval between WAL syncs.
	defaultSyncInterval = 100 * time.Millisecond

	pastePrefix = "paste/"
)

// Pebble is a Storage persisted in a pebble database. Writes do not wait
// for the disk; a background goroutine syncs the WAL periodically.
type Pebble struct {
	db       *pebble.DB
	stopSync chan struct{}
	wg       sync.WaitGroup
}

// NewPebble opens, or creates, the database at path. Pastes written by a
// previous run are served again.
func NewPebble(path string) (*Pebble, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(8 << 20),
		MemTableSize:                4 << 20,
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, xerrors.Errorf("failed to open store at %s: %v", path, err)
	}

	p := &Pebble{
		db:       db,
		stopSync: make(chan struct{}),
	}
	p.startSyncLoop()

	return p, nil
}

func (p *Pebble) Exists(name string) bool {
	_, closer, err := p.db.Get(key(name))
	if err != nil {
		return false
	}
	closer.Close()
	return true
}

func (p *Pebble) Get(name string) ([]byte, error) {
	value, closer, err := p.db.Get(key(name))
	if err == pebble.ErrNotFound {
		return nil, xerrors.Errorf("get %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("get %s: %v", name, err)
	}
	defer closer.Close()

	// value is only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *Pebble) Put(data []byte, name string) error {
	return p.db.Set(key(name), data, pebble.NoSync)
}

func (p *Pebble) Remove(name string) error {
	if !p.Exists(name) {
		return xerrors.Errorf("remove %s: %w", name, ErrNotFound)
	}
	return p.db.Delete(key(name), pebble.NoSync)
}

func (p *Pebble) Files() []types.FileInfo {
	var files []types.FileInfo
	err := p.iteratePrefix([]byte(pastePrefix), func(k, v []byte) error {
		files = append(files, types.NewFileInfo(string(k[len(pastePrefix):]), v))
		return nil
	})
	if err != nil {
		return nil
	}
	return files
}

// Close stops the sync goroutine, syncs a last time and closes the
// database.
func (p *Pebble) Close() error {
	close(p.stopSync)
	p.wg.Wait()

	if err := p.sync(); err != nil {
		return err
	}
	return p.db.Close()
}

func (p *Pebble) iteratePrefix(prefix []byte, fn func(k, v []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (p *Pebble) startSyncLoop() {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(defaultSyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = p.sync()
			case <-p.stopSync:
				return
			}
		}
	}()
}

func (p *Pebble) sync() error {
	return p.db.LogData(nil, pebble.Sync)
}

func key(name string) []byte {
	return []byte(pastePrefix + name)
}

// prefixUpperBound is the exclusive upper bound of a prefix scan, nil when
// the prefix is all 0xFF.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}
	return nil
}
