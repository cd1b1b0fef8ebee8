package nvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

// SizeUnavailable is returned by Size when the item cannot be measured.
const SizeUnavailable = -1

// Read returns the value stored under key with T's kind.
func Read[T Scalar](ctx context.Context, s *Stream, key string) (T, error) {
	var v T
	err := ReadInto(ctx, s, key, &v)
	return v, err
}

// ReadInto reads key into *dst. On failure *dst is left as it was.
func ReadInto[T Scalar](ctx context.Context, s *Stream, key string, dst *T) error {
	v, err := readScalar(ctx, s, codecFor[T](), key, *dst)
	if err == nil {
		*dst = v
	}
	return err
}

// Write stores item under key unless the stored value already equals item.
// The driver is written to, and the Stream marked dirty, only when the value
// changes or the key is new.
func Write[T Scalar](ctx context.Context, s *Stream, key string, item T) error {
	c := codecFor[T]()
	cur, err := readScalar(ctx, s, c, key, item)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case cur == item:
		s.skipped(ctx, key, c.kind)
		return nil
	}

	s.opts.logf("debug", ctx, "Saving %s item %q: %v -> %v", c.kind, key, cur, item)
	if err := s.record(s.dev.driver.SetScalar(ctx, s.handle, c.kind, key, c.encode(item))); err != nil {
		s.opts.logf("error", ctx, "Write %s item %q failed: %v", c.kind, key, err)
		return err
	}
	s.markDirty(ctx, key, c.kind)
	return nil
}

// readScalar returns seed alongside any error so that callers can log the
// in-memory value they started from.
func readScalar[T Scalar](ctx context.Context, s *Stream, c codec[T], key string, seed T) (T, error) {
	if err := s.usable(); err != nil {
		return seed, s.record(err)
	}
	raw, err := s.dev.driver.GetScalar(ctx, s.handle, c.kind, key)
	if s.record(err) != nil {
		if !errors.Is(err, ErrNotFound) {
			s.opts.logf("error", ctx, "Read %s item %q failed: %v", c.kind, key, err)
		}
		return seed, err
	}
	v := c.decode(raw)
	s.opts.logf("debug", ctx, "Read %s item %q: %v -> %v", c.kind, key, seed, v)
	return v, nil
}

// Size returns the stored length of key: the byte length of a blob, the
// length of a string including its terminating NUL, or the width of a
// fixed-width kind. On failure it returns SizeUnavailable and the error.
func (s *Stream) Size(ctx context.Context, key string, kind Kind) (int, error) {
	if err := s.usable(); err != nil {
		return SizeUnavailable, s.record(err)
	}

	var (
		n   int
		err error
		drv = s.dev.driver
	)
	switch kind {
	case KindString:
		n, err = drv.GetString(ctx, s.handle, key, nil)
	case KindBlob:
		n, err = drv.GetBlob(ctx, s.handle, key, nil)
	default:
		if n = kind.Width(); n == 0 {
			err = fmt.Errorf("size of %s: %w", kind, ErrTypeMismatch)
		} else {
			_, err = drv.GetScalar(ctx, s.handle, kind, key)
		}
	}
	if s.record(err) != nil {
		return SizeUnavailable, err
	}
	return n, nil
}

// ReadString returns the string stored under key.
func (s *Stream) ReadString(ctx context.Context, key string) (string, error) {
	var v string
	err := s.ReadStringInto(ctx, key, &v)
	return v, err
}

// ReadStringInto reads key into *dst. The read buffer holds at least
// len(*dst)+1 bytes, so a stored value is never truncated to fit a shorter
// destination, nor a longer destination to fit a shorter stored value.
func (s *Stream) ReadStringInto(ctx context.Context, key string, dst *string) error {
	size, err := s.Size(ctx, key, KindString)
	if err != nil {
		return err
	}
	v, err := s.fetchString(ctx, key, *dst, size)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// fetchString reads key with a buffer of max(size, len(seed)+1) bytes seeded
// with seed. size is the stored length reported by Size.
func (s *Stream) fetchString(ctx context.Context, key, seed string, size int) (string, error) {
	buf := s.scratch.reserve(max(size, len(seed)+1))
	defer s.scratch.release()
	copy(buf, seed)
	buf[len(seed)] = 0

	n, err := s.dev.driver.GetString(ctx, s.handle, key, buf)
	if s.record(err) != nil {
		s.opts.logf("error", ctx, "Read string item %q failed: %v", key, err)
		return "", err
	}
	v := cstring(buf[:n])
	s.opts.logf("debug", ctx, "Read string item %q: %q -> %q (buffer %d)", key, seed, v, len(buf))
	return v, nil
}

// WriteString stores item under key unless the stored string already equals
// it. Strings must not contain NUL.
func (s *Stream) WriteString(ctx context.Context, key, item string) error {
	if strings.IndexByte(item, 0) >= 0 {
		return s.record(fmt.Errorf("string item %q contains NUL: %w", key, ErrInvalidLength))
	}

	size, err := s.Size(ctx, key, KindString)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case size == len(item)+1:
		cur, err := s.fetchString(ctx, key, "", size)
		if err != nil {
			return err
		}
		if cur == item {
			s.skipped(ctx, key, KindString)
			return nil
		}
	}

	s.opts.logf("debug", ctx, "Saving string item %q: %q", key, item)
	if err := s.record(s.dev.driver.SetString(ctx, s.handle, key, item)); err != nil {
		s.opts.logf("error", ctx, "Write string item %q failed: %v", key, err)
		return err
	}
	s.markDirty(ctx, key, KindString)
	return nil
}

// ReadBlob copies the blob stored under key into buf and returns its length.
// If buf is too short the error is ErrInvalidLength and the returned length
// is the one required.
func (s *Stream) ReadBlob(ctx context.Context, key string, buf []byte) (int, error) {
	if err := s.usable(); err != nil {
		return 0, s.record(err)
	}
	n, err := s.dev.driver.GetBlob(ctx, s.handle, key, buf)
	if s.record(err) != nil && !errors.Is(err, ErrNotFound) {
		s.opts.logf("error", ctx, "Read blob item %q failed: %v", key, err)
	}
	return n, err
}

// WriteBlob stores item under key unless the stored blob already equals it.
func (s *Stream) WriteBlob(ctx context.Context, key string, item []byte) error {
	size, err := s.Size(ctx, key, KindBlob)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case size == len(item):
		buf := s.scratch.reserve(size)
		n, err := s.ReadBlob(ctx, key, buf)
		same := err == nil && bytes.Equal(buf[:n], item)
		s.scratch.release()
		if err != nil {
			return err
		}
		if same {
			s.skipped(ctx, key, KindBlob)
			return nil
		}
	}

	s.opts.logf("debug", ctx, "Saving blob item %q (%d bytes)", key, len(item))
	if err := s.record(s.dev.driver.SetBlob(ctx, s.handle, key, item)); err != nil {
		s.opts.logf("error", ctx, "Write blob item %q failed: %v", key, err)
		return err
	}
	s.markDirty(ctx, key, KindBlob)
	return nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// scratchKeep bounds the buffer a Stream keeps between reads.
const scratchKeep = 512

// scratch is the read buffer of a Stream, reused across reads.
type scratch struct {
	buf []byte
}

// reserve returns a buffer of exactly n bytes.
func (s *scratch) reserve(n int) []byte {
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	s.buf = s.buf[:n]
	return s.buf
}

// release drops a buffer that grew past scratchKeep.
func (s *scratch) release() {
	if cap(s.buf) > scratchKeep {
		s.buf = nil
	}
}
