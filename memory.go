package nvstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type entry struct {
	kind   Kind
	scalar uint64
	data   []byte
}

type partition struct {
	initialized bool
	spaces      map[string]map[string]entry
}

type session struct {
	label     string
	namespace string
	mode      Mode
	pending   map[string]entry
}

// Memory implements Driver with thread-safe in-memory partitions. Writes go
// to a per-handle pending set that Commit publishes and Close drops, which
// makes it a faithful stand-in for flash in tests.
type Memory struct {
	mu          sync.RWMutex
	partitions  map[string]*partition
	initResults map[string]error
	sessions    map[Handle]*session
	next        Handle
}

var _ Driver = (*Memory)(nil)

// NewMemory creates an in-memory Driver instance.
func NewMemory() *Memory {
	return &Memory{
		partitions:  make(map[string]*partition),
		initResults: make(map[string]error),
		sessions:    make(map[Handle]*session),
	}
}

// SetInitResult makes subsequent Init calls for label fail with err, the
// way a truncated or newer-layout partition does. A nil err restores normal
// behaviour. Erase clears it.
func (m *Memory) SetInitResult(label string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.initResults, label)
		return
	}
	m.initResults[label] = err
}

func (m *Memory) Init(ctx context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partitions[label]
	if !ok {
		p = &partition{spaces: make(map[string]map[string]entry)}
		m.partitions[label] = p
	}
	if err := m.initResults[label]; err != nil {
		p.initialized = false
		return err
	}
	p.initialized = true
	return nil
}

func (m *Memory) Erase(ctx context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.partitions, label)
	delete(m.initResults, label)
	for h, s := range m.sessions {
		if s.label == label {
			delete(m.sessions, h)
		}
	}
	return nil
}

func (m *Memory) Open(ctx context.Context, label, namespace string, mode Mode) (Handle, error) {
	if err := ValidName(namespace); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partitions[label]
	if !ok || !p.initialized {
		return 0, ErrNotInitialized
	}
	if _, ok := p.spaces[namespace]; !ok {
		if mode == ReadOnly {
			return 0, fmt.Errorf("namespace %q: %w", namespace, ErrNotFound)
		}
		p.spaces[namespace] = make(map[string]entry)
	}

	m.next++
	m.sessions[m.next] = &session{
		label:     label,
		namespace: namespace,
		mode:      mode,
		pending:   make(map[string]entry),
	}
	return m.next, nil
}

func (m *Memory) Close(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, h)
}

func (m *Memory) Commit(ctx context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, space, err := m.session(h)
	if err != nil {
		return err
	}
	for k, e := range s.pending {
		space[k] = e
	}
	s.pending = make(map[string]entry)
	return nil
}

// session resolves h. The caller must hold mu.
func (m *Memory) session(h Handle) (*session, map[string]entry, error) {
	s, ok := m.sessions[h]
	if !ok {
		return nil, nil, ErrInvalidHandle
	}
	p, ok := m.partitions[s.label]
	if !ok || !p.initialized {
		return nil, nil, ErrInvalidHandle
	}
	return s, p.spaces[s.namespace], nil
}

func (m *Memory) lookup(h Handle, kind Kind, key string) (entry, error) {
	if err := ValidName(key); err != nil {
		return entry{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, space, err := m.session(h)
	if err != nil {
		return entry{}, err
	}
	e, ok := s.pending[key]
	if !ok {
		e, ok = space[key]
	}
	if !ok {
		return entry{}, fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	if e.kind != kind {
		return entry{}, fmt.Errorf("key %q is %s, not %s: %w", key, e.kind, kind, ErrTypeMismatch)
	}
	return e, nil
}

func (m *Memory) store(h Handle, key string, e entry) error {
	if err := ValidName(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, _, err := m.session(h)
	if err != nil {
		return err
	}
	if s.mode != ReadWrite {
		return ErrReadOnly
	}
	s.pending[key] = e
	return nil
}

func (m *Memory) GetScalar(ctx context.Context, h Handle, kind Kind, key string) (uint64, error) {
	if kind.Width() == 0 {
		return 0, fmt.Errorf("%s is not a scalar: %w", kind, ErrTypeMismatch)
	}
	e, err := m.lookup(h, kind, key)
	return e.scalar, err
}

func (m *Memory) SetScalar(ctx context.Context, h Handle, kind Kind, key string, value uint64) error {
	if kind.Width() == 0 {
		return fmt.Errorf("%s is not a scalar: %w", kind, ErrTypeMismatch)
	}
	return m.store(h, key, entry{kind: kind, scalar: value})
}

func (m *Memory) GetString(ctx context.Context, h Handle, key string, buf []byte) (int, error) {
	e, err := m.lookup(h, KindString, key)
	if err != nil {
		return 0, err
	}
	return CopyValue(buf, e.data, true)
}

func (m *Memory) SetString(ctx context.Context, h Handle, key string, value string) error {
	if strings.IndexByte(value, 0) >= 0 {
		return ErrInvalidLength
	}
	return m.store(h, key, entry{kind: KindString, data: []byte(value)})
}

func (m *Memory) GetBlob(ctx context.Context, h Handle, key string, buf []byte) (int, error) {
	e, err := m.lookup(h, KindBlob, key)
	if err != nil {
		return 0, err
	}
	return CopyValue(buf, e.data, false)
}

func (m *Memory) SetBlob(ctx context.Context, h Handle, key string, value []byte) error {
	return m.store(h, key, entry{kind: KindBlob, data: clone(value)})
}

func clone(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
