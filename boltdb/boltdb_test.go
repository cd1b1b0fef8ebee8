package boltdb

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"code.byted.org/khicago/nvstore"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"go.uber.org/zap/zaptest"
)

func newDriver(t *testing.T, dir string, opts ...func(*Options)) *Driver {
	t.Helper()
	o := Options{Dir: dir, Logger: zaptest.NewLogger(t)}
	for _, f := range opts {
		f(&o)
	}
	d, err := New(o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown() })
	return d
}

func openNamespace(t *testing.T, d *Driver, label, ns string, mode nvstore.Mode) nvstore.Handle {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, d.Init(ctx, label))
	h, err := d.Open(ctx, label, ns, mode)
	require.NoError(t, err)
	return h
}

func TestNew(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, errEmptyDir)

	d, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	require.Nil(t, d.cache)
	require.EqualValues(t, defaultFilePermission, d.opts.Perm)

	d, err = New(Options{Dir: t.TempDir(), CacheSize: 8})
	require.NoError(t, err)
	require.NotNil(t, d.cache)
}

func TestDriver_Path(t *testing.T) {
	d := newDriver(t, "/data/nvs")
	require.Equal(t, "/data/nvs/nvs.db", d.Path(nvstore.DefaultPartition))
	require.Equal(t, "/data/nvs/nvs_ext.db", d.Path("nvs_ext"))
}

func TestDriver_Init_InvalidLabel(t *testing.T) {
	d := newDriver(t, t.TempDir())
	require.ErrorIs(t, d.Init(context.Background(), "label_that_is_far_too_long"), nvstore.ErrInvalidName)
}

func TestDriver_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d := newDriver(t, dir)
	h := openNamespace(t, d, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)
	require.NoError(t, d.SetScalar(ctx, h, nvstore.KindI8, "neg", 0xff))
	require.NoError(t, d.SetScalar(ctx, h, nvstore.KindU64, "big", 1<<60))
	require.NoError(t, d.SetString(ctx, h, "name", "pump"))
	require.NoError(t, d.SetBlob(ctx, h, "raw", []byte{1, 2, 3}))
	require.NoError(t, d.Commit(ctx, h))
	require.NoError(t, d.Shutdown())

	d = newDriver(t, dir)
	h = openNamespace(t, d, nvstore.DefaultPartition, "cfg", nvstore.ReadOnly)

	v, err := d.GetScalar(ctx, h, nvstore.KindI8, "neg")
	require.NoError(t, err)
	require.EqualValues(t, 0xff, v)

	v, err = d.GetScalar(ctx, h, nvstore.KindU64, "big")
	require.NoError(t, err)
	require.EqualValues(t, uint64(1<<60), v)

	buf := make([]byte, 16)
	n, err := d.GetString(ctx, h, "name", buf)
	require.NoError(t, err)
	require.Equal(t, "pump\x00", string(buf[:n]))

	n, err = d.GetBlob(ctx, h, "raw", buf)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, buf[:n])

	require.ErrorIs(t, d.SetScalar(ctx, h, nvstore.KindU8, "k", 1), nvstore.ErrReadOnly)
}

func TestDriver_CloseDiscardsPending(t *testing.T) {
	d := newDriver(t, t.TempDir())
	ctx := context.Background()

	h := openNamespace(t, d, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)
	require.NoError(t, d.SetScalar(ctx, h, nvstore.KindU32, "count", 5))

	v, err := d.GetScalar(ctx, h, nvstore.KindU32, "count")
	require.NoError(t, err)
	require.EqualValues(t, 5, v)

	d.Close(h)
	_, err = d.GetScalar(ctx, h, nvstore.KindU32, "count")
	require.ErrorIs(t, err, nvstore.ErrInvalidHandle)

	h, err = d.Open(ctx, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)
	require.NoError(t, err)
	_, err = d.GetScalar(ctx, h, nvstore.KindU32, "count")
	require.ErrorIs(t, err, nvstore.ErrNotFound)
}

func TestDriver_Open(t *testing.T) {
	d := newDriver(t, t.TempDir())
	ctx := context.Background()

	_, err := d.Open(ctx, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)
	require.ErrorIs(t, err, nvstore.ErrNotInitialized)

	require.NoError(t, d.Init(ctx, nvstore.DefaultPartition))

	_, err = d.Open(ctx, nvstore.DefaultPartition, "cfg", nvstore.ReadOnly)
	require.ErrorIs(t, err, nvstore.ErrNotFound)

	_, err = d.Open(ctx, nvstore.DefaultPartition, "", nvstore.ReadWrite)
	require.ErrorIs(t, err, nvstore.ErrInvalidName)

	_, err = d.Open(ctx, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)
	require.NoError(t, err)
	_, err = d.Open(ctx, nvstore.DefaultPartition, "cfg", nvstore.ReadOnly)
	require.NoError(t, err)
}

func TestDriver_TypeMismatch(t *testing.T) {
	d := newDriver(t, t.TempDir())
	ctx := context.Background()
	h := openNamespace(t, d, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)

	require.NoError(t, d.SetScalar(ctx, h, nvstore.KindU16, "port", 8080))
	require.NoError(t, d.Commit(ctx, h))

	_, err := d.GetScalar(ctx, h, nvstore.KindI16, "port")
	require.ErrorIs(t, err, nvstore.ErrTypeMismatch)
	_, err = d.GetBlob(ctx, h, "port", nil)
	require.ErrorIs(t, err, nvstore.ErrTypeMismatch)
	require.ErrorIs(t, d.SetScalar(ctx, h, nvstore.KindString, "port", 1), nvstore.ErrTypeMismatch)
}

func TestDriver_ShortBuffer(t *testing.T) {
	d := newDriver(t, t.TempDir())
	ctx := context.Background()
	h := openNamespace(t, d, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)

	require.NoError(t, d.SetString(ctx, h, "name", "pump"))
	require.ErrorIs(t, d.SetString(ctx, h, "bad", "a\x00b"), nvstore.ErrInvalidLength)

	n, err := d.GetString(ctx, h, "name", nil)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = d.GetString(ctx, h, "name", make([]byte, 4))
	require.ErrorIs(t, err, nvstore.ErrInvalidLength)
	require.Equal(t, 5, n)
}

func writeVersion(t *testing.T, path string, v []byte) {
	t.Helper()
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		return b.Put(versionKey, v)
	}))
	require.NoError(t, db.Close())
}

func TestDriver_Init_NewVersionFound(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	d := newDriver(t, dir)

	writeVersion(t, d.Path(nvstore.DefaultPartition), binary.LittleEndian.AppendUint32(nil, LayoutVersion+1))
	require.ErrorIs(t, d.Init(ctx, nvstore.DefaultPartition), nvstore.ErrNewVersionFound)

	_, err := d.Open(ctx, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)
	require.ErrorIs(t, err, nvstore.ErrNotInitialized)

	require.NoError(t, d.Erase(ctx, nvstore.DefaultPartition))
	require.NoError(t, d.Init(ctx, nvstore.DefaultPartition))
}

func TestDriver_Init_CorruptVersion(t *testing.T) {
	d := newDriver(t, t.TempDir())

	writeVersion(t, d.Path("nvs_ext"), []byte{1})
	require.ErrorIs(t, d.Init(context.Background(), "nvs_ext"), nvstore.ErrNewVersionFound)
}

func TestDriver_Init_OlderVersion(t *testing.T) {
	d := newDriver(t, t.TempDir())

	writeVersion(t, d.Path(nvstore.DefaultPartition), binary.LittleEndian.AppendUint32(nil, 0))
	require.NoError(t, d.Init(context.Background(), nvstore.DefaultPartition))
}

func TestDriver_NoFreePages(t *testing.T) {
	ctx := context.Background()

	t.Run("init", func(t *testing.T) {
		d := newDriver(t, t.TempDir(), func(o *Options) { o.MaxSize = 1 })
		require.ErrorIs(t, d.Init(ctx, nvstore.DefaultPartition), nvstore.ErrNoFreePages)
	})

	t.Run("commit", func(t *testing.T) {
		d := newDriver(t, t.TempDir())
		h := openNamespace(t, d, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)

		info, err := os.Stat(d.Path(nvstore.DefaultPartition))
		require.NoError(t, err)
		d.opts.MaxSize = info.Size()

		require.NoError(t, d.SetBlob(ctx, h, "raw", make([]byte, 64)))
		require.ErrorIs(t, d.Commit(ctx, h), nvstore.ErrNoFreePages)

		// Pending writes survive a failed commit.
		n, err := d.GetBlob(ctx, h, "raw", nil)
		require.NoError(t, err)
		require.Equal(t, 64, n)
	})
}

func TestDriver_Erase(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	d := newDriver(t, dir, func(o *Options) { o.CacheSize = 16 })

	h := openNamespace(t, d, "nvs_ext", "cfg", nvstore.ReadWrite)
	require.NoError(t, d.SetScalar(ctx, h, nvstore.KindU8, "k", 1))
	require.NoError(t, d.Commit(ctx, h))
	require.Equal(t, 1, d.cache.Len())

	require.NoError(t, d.Erase(ctx, "nvs_ext"))
	require.Zero(t, d.cache.Len())
	_, err := os.Stat(filepath.Join(dir, "nvs_ext.db"))
	require.True(t, os.IsNotExist(err))

	_, err = d.GetScalar(ctx, h, nvstore.KindU8, "k")
	require.ErrorIs(t, err, nvstore.ErrInvalidHandle)

	// Erasing a partition that never existed is fine.
	require.NoError(t, d.Erase(ctx, "nvs_other"))
}

func TestDriver_Cache(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	d := newDriver(t, dir, func(o *Options) { o.CacheSize = 2 })

	h := openNamespace(t, d, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)
	for i, k := range []string{"a", "b", "c"} {
		require.NoError(t, d.SetScalar(ctx, h, nvstore.KindU8, k, uint64(i)))
	}
	require.NoError(t, d.Commit(ctx, h))
	require.Equal(t, 2, d.cache.Len())

	// Evicted values are read back from the file and cached again.
	for i, k := range []string{"a", "b", "c"} {
		v, err := d.GetScalar(ctx, h, nvstore.KindU8, k)
		require.NoError(t, err)
		require.EqualValues(t, i, v)
	}
	require.True(t, d.cache.Contains(cacheKey(nvstore.DefaultPartition, "cfg", "c")))
}

func TestDriver_CanceledContext(t *testing.T) {
	d := newDriver(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, d.Init(ctx, nvstore.DefaultPartition), context.Canceled)
	_, err := d.Open(ctx, nvstore.DefaultPartition, "cfg", nvstore.ReadWrite)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeRecord(t *testing.T) {
	_, err := decodeRecord(nil)
	require.ErrorIs(t, err, nvstore.ErrInvalidLength)

	_, err = decodeRecord([]byte{byte(nvstore.KindU32), 1, 2})
	require.ErrorIs(t, err, nvstore.ErrInvalidLength)

	r, err := decodeRecord(encodeRecord(record{kind: nvstore.KindBlob, data: []byte{7}}))
	require.NoError(t, err)
	require.Equal(t, nvstore.KindBlob, r.kind)
	require.Equal(t, []byte{7}, r.data)
}

func TestDriver_Stream(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d := newDriver(t, dir)
	s, err := nvstore.OpenStream(ctx, nvstore.NewDevice(ctx, d, nvstore.DefaultPartition), "cfg", nvstore.ReadWrite)
	require.NoError(t, err)

	require.NoError(t, nvstore.Write[uint32](ctx, s, "count", 5))
	require.NoError(t, s.WriteString(ctx, "name", "pump"))
	require.NoError(t, nvstore.Write(ctx, s, "enabled", true))
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Close())
	require.NoError(t, d.Shutdown())

	d = newDriver(t, dir)
	s, err = nvstore.OpenStream(ctx, nvstore.NewDevice(ctx, d, nvstore.DefaultPartition), "cfg", nvstore.ReadOnly)
	require.NoError(t, err)

	count, err := nvstore.Read[uint32](ctx, s, "count")
	require.NoError(t, err)
	require.EqualValues(t, 5, count)

	name, err := s.ReadString(ctx, "name")
	require.NoError(t, err)
	require.Equal(t, "pump", name)

	enabled, err := nvstore.Read[bool](ctx, s, "enabled")
	require.NoError(t, err)
	require.True(t, enabled)

	// Unchanged values are not written, so a read-only session accepts them.
	require.NoError(t, nvstore.Write[uint32](ctx, s, "count", 5))
	require.False(t, s.Dirty())
}
