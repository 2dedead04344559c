package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Memory is a Storage living in a map. It loses everything on Close.
type Memory struct {
	sync.RWMutex
	internal map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{internal: make(map[string][]byte)}
}

func (m *Memory) Exists(name string) bool {
	m.RLock()
	defer m.RUnlock()
	_, ok := m.internal[name]
	return ok
}

func (m *Memory) Get(name string) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	value, ok := m.internal[name]
	if !ok {
		return nil, xerrors.Errorf("get %s: %w", name, ErrNotFound)
	}
	return append([]byte(nil), value...), nil
}

func (m *Memory) Put(data []byte, name string) error {
	m.Lock()
	defer m.Unlock()
	m.internal[name] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Remove(name string) error {
	m.Lock()
	defer m.Unlock()
	_, ok := m.internal[name]
	if !ok {
		return xerrors.Errorf("remove %s: %w", name, ErrNotFound)
	}
	delete(m.internal, name)
	return nil
}

func (m *Memory) Files() []types.FileInfo {
	m.RLock()
	defer m.RUnlock()
	files := make([]types.FileInfo, 0, len(m.internal))
	for name, value := range m.internal {
		files = append(files, types.NewFileInfo(name, value))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

func (m *Memory) Close() error {
	m.Lock()
	defer m.Unlock()
	m.internal = make(map[string][]byte)
	return nil
}

func (m *Memory) String() string {
	m.RLock()
	defer m.RUnlock()
	ret := new(strings.Builder)
	ret.WriteString("{")
	for name, value := range m.internal {
		fmt.Fprintf(ret, "%s->%dB,", name, len(value))
	}
	ret.WriteString("}")
	return ret.String()
}
