// Package boltdb implements nvstore.Driver on bbolt files, one file per
// partition label and one bucket per namespace.
package boltdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"code.byted.org/khicago/nvstore"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// LayoutVersion is the on-disk format written by this driver. A partition
// carrying a higher version fails Init with nvstore.ErrNewVersionFound.
const LayoutVersion uint32 = 1

const (
	defaultFilePermission = 0o640
	defaultFileName       = "nvs.db"
	fileExt               = ".db"
)

var (
	metaBucket = []byte("\x00meta")
	versionKey = []byte("version")

	errEmptyDir = errors.New("boltdb: partition directory is empty")
)

// Options groups the driver's options.
type Options struct {
	bbolt.Options

	// Dir holds one file per partition.
	Dir  string
	Perm os.FileMode

	// MaxSize caps a partition file in bytes. Init and Commit fail with
	// nvstore.ErrNoFreePages once it is reached. Zero means no cap.
	MaxSize int64

	// CacheSize is the number of committed values kept in memory.
	// Zero disables the cache.
	CacheSize int

	Logger *zap.Logger
}

type record struct {
	kind nvstore.Kind
	data []byte
}

type session struct {
	label     string
	namespace string
	mode      nvstore.Mode
	pending   map[string]record
}

// Driver stores partitions as bbolt databases. Writes are staged per handle
// and written in one transaction by Commit.
type Driver struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	dbs      map[string]*bbolt.DB
	sessions map[nvstore.Handle]*session
	next     nvstore.Handle

	cache *lru.Cache[string, record]
}

var _ nvstore.Driver = (*Driver)(nil)

// New creates a Driver. No file is touched before Init.
func New(opts Options) (*Driver, error) {
	if opts.Dir == "" {
		return nil, errEmptyDir
	}
	if opts.Perm == 0 {
		opts.Perm = defaultFilePermission
	}
	if opts.Timeout == 0 {
		opts.Timeout = bbolt.DefaultOptions.Timeout
	}
	if opts.FreelistType == "" {
		opts.FreelistType = bbolt.DefaultOptions.FreelistType
	}

	d := &Driver{
		opts:     opts,
		log:      opts.Logger,
		dbs:      make(map[string]*bbolt.DB),
		sessions: make(map[nvstore.Handle]*session),
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		c, err := lru.New[string, record](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("could not create value cache: %w", err)
		}
		d.cache = c
	}
	return d, nil
}

// Path returns the file backing the partition labelled label.
func (d *Driver) Path(label string) string {
	if label == nvstore.DefaultPartition {
		return filepath.Join(d.opts.Dir, defaultFileName)
	}
	return filepath.Join(d.opts.Dir, label+fileExt)
}

func (d *Driver) Init(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if label != nvstore.DefaultPartition {
		if err := nvstore.ValidName(label); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	db, ok := d.dbs[label]
	if !ok {
		if err := os.MkdirAll(d.opts.Dir, 0o750); err != nil {
			return fmt.Errorf("could not use `%s` dir: %w", d.opts.Dir, err)
		}
		var err error
		db, err = bbolt.Open(d.Path(label), d.opts.Perm, &d.opts.Options)
		if err != nil {
			return fmt.Errorf("could not open partition %q: %w", label, err)
		}
	}

	if err := d.checkLayout(db); err != nil {
		delete(d.dbs, label)
		d.purge(label)
		return multierr.Append(err, db.Close())
	}
	d.dbs[label] = db
	d.log.Debug("partition initialized", zap.String("label", label), zap.String("path", db.Path()))
	return nil
}

// checkLayout stamps a fresh partition with LayoutVersion and rejects a
// newer or full one.
func (d *Driver) checkLayout(db *bbolt.DB) error {
	if d.full(db, 0) {
		return nvstore.ErrNoFreePages
	}
	if db.IsReadOnly() {
		return db.View(func(tx *bbolt.Tx) error {
			b := tx.Bucket(metaBucket)
			if b == nil {
				return nvstore.ErrNotInitialized
			}
			return checkVersion(b.Get(versionKey))
		})
	}
	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if v := b.Get(versionKey); v != nil {
			return checkVersion(v)
		}
		return b.Put(versionKey, binary.LittleEndian.AppendUint32(nil, LayoutVersion))
	})
}

func checkVersion(v []byte) error {
	if len(v) != 4 {
		return fmt.Errorf("layout version of %d bytes: %w", len(v), nvstore.ErrNewVersionFound)
	}
	if got := binary.LittleEndian.Uint32(v); got > LayoutVersion {
		return fmt.Errorf("layout version %d > %d: %w", got, LayoutVersion, nvstore.ErrNewVersionFound)
	}
	return nil
}

// full reports whether extra more bytes would push the partition past MaxSize.
func (d *Driver) full(db *bbolt.DB, extra int64) bool {
	if d.opts.MaxSize <= 0 {
		return false
	}
	info, err := os.Stat(db.Path())
	if err != nil {
		return false
	}
	return info.Size()+extra > d.opts.MaxSize
}

func (d *Driver) Erase(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if db, ok := d.dbs[label]; ok {
		err = db.Close()
		delete(d.dbs, label)
	}
	for h, s := range d.sessions {
		if s.label == label {
			delete(d.sessions, h)
		}
	}
	d.purge(label)

	if rmErr := os.Remove(d.Path(label)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		err = multierr.Append(err, rmErr)
	}
	d.log.Debug("partition erased", zap.String("label", label))
	return err
}

func (d *Driver) Open(ctx context.Context, label, namespace string, mode nvstore.Mode) (nvstore.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := nvstore.ValidName(namespace); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	db, ok := d.dbs[label]
	if !ok {
		return 0, nvstore.ErrNotInitialized
	}

	var exists bool
	if err := db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket([]byte(namespace)) != nil
		return nil
	}); err != nil {
		return 0, err
	}
	if !exists {
		if mode == nvstore.ReadOnly {
			return 0, fmt.Errorf("namespace %q: %w", namespace, nvstore.ErrNotFound)
		}
		if err := db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(namespace))
			return err
		}); err != nil {
			return 0, fmt.Errorf("could not create namespace %q: %w", namespace, err)
		}
	}

	d.next++
	d.sessions[d.next] = &session{
		label:     label,
		namespace: namespace,
		mode:      mode,
		pending:   make(map[string]record),
	}
	return d.next, nil
}

func (d *Driver) Close(h nvstore.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, h)
}

func (d *Driver) Commit(ctx context.Context, h nvstore.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, db, err := d.session(h)
	if err != nil {
		return err
	}
	if len(s.pending) == 0 {
		return nil
	}

	var size int64
	for k, r := range s.pending {
		size += int64(len(k) + len(r.data) + 1)
	}
	if d.full(db, size) {
		return nvstore.ErrNoFreePages
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.namespace))
		if b == nil {
			return fmt.Errorf("namespace %q: %w", s.namespace, nvstore.ErrNotFound)
		}
		for k, r := range s.pending {
			if err := b.Put([]byte(k), encodeRecord(r)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if d.cache != nil {
		for k, r := range s.pending {
			d.cache.Add(cacheKey(s.label, s.namespace, k), r)
		}
	}
	s.pending = make(map[string]record)
	return nil
}

// session resolves h. The caller must hold mu.
func (d *Driver) session(h nvstore.Handle) (*session, *bbolt.DB, error) {
	s, ok := d.sessions[h]
	if !ok {
		return nil, nil, nvstore.ErrInvalidHandle
	}
	db, ok := d.dbs[s.label]
	if !ok {
		return nil, nil, nvstore.ErrInvalidHandle
	}
	return s, db, nil
}

func (d *Driver) lookup(ctx context.Context, h nvstore.Handle, kind nvstore.Kind, key string) (record, error) {
	if err := ctx.Err(); err != nil {
		return record{}, err
	}
	if err := nvstore.ValidName(key); err != nil {
		return record{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, db, err := d.session(h)
	if err != nil {
		return record{}, err
	}

	r, ok := s.pending[key]
	if !ok && d.cache != nil {
		r, ok = d.cache.Get(cacheKey(s.label, s.namespace, key))
	}
	if !ok {
		err = db.View(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte(s.namespace))
			if b == nil {
				return nil
			}
			if v := b.Get([]byte(key)); v != nil {
				r, err = decodeRecord(v)
				ok = err == nil
				return err
			}
			return nil
		})
		if err != nil {
			return record{}, fmt.Errorf("key %q: %w", key, err)
		}
		if ok && d.cache != nil {
			d.cache.Add(cacheKey(s.label, s.namespace, key), r)
		}
	}

	if !ok {
		return record{}, fmt.Errorf("key %q: %w", key, nvstore.ErrNotFound)
	}
	if r.kind != kind {
		return record{}, fmt.Errorf("key %q is %s, not %s: %w", key, r.kind, kind, nvstore.ErrTypeMismatch)
	}
	return r, nil
}

func (d *Driver) store(ctx context.Context, h nvstore.Handle, key string, r record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := nvstore.ValidName(key); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, _, err := d.session(h)
	if err != nil {
		return err
	}
	if s.mode != nvstore.ReadWrite {
		return nvstore.ErrReadOnly
	}
	s.pending[key] = r
	return nil
}

func (d *Driver) GetScalar(ctx context.Context, h nvstore.Handle, kind nvstore.Kind, key string) (uint64, error) {
	if kind.Width() == 0 {
		return 0, fmt.Errorf("%s is not a scalar: %w", kind, nvstore.ErrTypeMismatch)
	}
	r, err := d.lookup(ctx, h, kind, key)
	if err != nil {
		return 0, err
	}
	return getUint(r.data), nil
}

func (d *Driver) SetScalar(ctx context.Context, h nvstore.Handle, kind nvstore.Kind, key string, value uint64) error {
	w := kind.Width()
	if w == 0 {
		return fmt.Errorf("%s is not a scalar: %w", kind, nvstore.ErrTypeMismatch)
	}
	data := binary.LittleEndian.AppendUint64(nil, value)[:w]
	return d.store(ctx, h, key, record{kind: kind, data: data})
}

func (d *Driver) GetString(ctx context.Context, h nvstore.Handle, key string, buf []byte) (int, error) {
	r, err := d.lookup(ctx, h, nvstore.KindString, key)
	if err != nil {
		return 0, err
	}
	return nvstore.CopyValue(buf, r.data, true)
}

func (d *Driver) SetString(ctx context.Context, h nvstore.Handle, key string, value string) error {
	for i := 0; i < len(value); i++ {
		if value[i] == 0 {
			return nvstore.ErrInvalidLength
		}
	}
	return d.store(ctx, h, key, record{kind: nvstore.KindString, data: []byte(value)})
}

func (d *Driver) GetBlob(ctx context.Context, h nvstore.Handle, key string, buf []byte) (int, error) {
	r, err := d.lookup(ctx, h, nvstore.KindBlob, key)
	if err != nil {
		return 0, err
	}
	return nvstore.CopyValue(buf, r.data, false)
}

func (d *Driver) SetBlob(ctx context.Context, h nvstore.Handle, key string, value []byte) error {
	return d.store(ctx, h, key, record{kind: nvstore.KindBlob, data: makeCopy(value)})
}

// Shutdown closes every open partition. Open handles become invalid.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for label, db := range d.dbs {
		err = multierr.Append(err, db.Close())
		delete(d.dbs, label)
	}
	d.sessions = make(map[nvstore.Handle]*session)
	if d.cache != nil {
		d.cache.Purge()
	}
	return err
}

// purge drops cached values of label. The caller must hold mu.
func (d *Driver) purge(label string) {
	if d.cache == nil {
		return
	}
	prefix := label + "\x00"
	for _, k := range d.cache.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			d.cache.Remove(k)
		}
	}
}

func cacheKey(label, namespace, key string) string {
	return label + "\x00" + namespace + "\x00" + key
}

func encodeRecord(r record) []byte {
	out := make([]byte, 1+len(r.data))
	out[0] = byte(r.kind)
	copy(out[1:], r.data)
	return out
}

// decodeRecord copies v: bbolt memory is valid only inside the transaction.
func decodeRecord(v []byte) (record, error) {
	if len(v) == 0 {
		return record{}, fmt.Errorf("empty record: %w", nvstore.ErrInvalidLength)
	}
	r := record{kind: nvstore.Kind(v[0]), data: makeCopy(v[1:])}
	if w := r.kind.Width(); w != 0 && len(r.data) != w {
		return record{}, fmt.Errorf("%s record of %d bytes: %w", r.kind, len(r.data), nvstore.ErrInvalidLength)
	}
	return r, nil
}

func getUint(data []byte) uint64 {
	var buf [8]byte
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:])
}

func makeCopy(val []byte) []byte {
	tmp := make([]byte, len(val))
	copy(tmp, val)

	return tmp
}
