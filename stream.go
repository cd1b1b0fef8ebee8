package nvstore

import (
	"context"
	"fmt"
)

// Stream is a session on one namespace of a Device. Writes become durable
// only after Commit; Close without Commit discards them.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	dev  *Device
	opts options

	namespace string
	mode      Mode
	handle    Handle

	err     error
	dirty   bool
	scratch scratch
}

// NewStream returns an unopened Stream on dev. Its status is
// ErrInvalidState until Open succeeds.
func NewStream(dev *Device, opts ...Option) *Stream {
	return &Stream{
		dev:  dev,
		opts: applyOptions(opts),
		err:  ErrInvalidState,
	}
}

// OpenStream creates a Stream on dev and opens namespace with mode. The
// Stream is returned even when Open fails so that it can be reopened.
func OpenStream(ctx context.Context, dev *Device, namespace string, mode Mode, opts ...Option) (*Stream, error) {
	s := NewStream(dev, opts...)
	s.opts.logf("info", ctx, "Create stream on namespace %q", namespace)
	return s, s.Open(ctx, namespace, mode)
}

// Open binds the Stream to namespace. Opening an open Stream replaces its
// handle without closing the previous one.
func (s *Stream) Open(ctx context.Context, namespace string, mode Mode) error {
	if !s.dev.IsOK() {
		s.err = ErrInvalidState
		s.opts.logf("error", ctx, "Open namespace %q failed: device %s is not usable: %v",
			namespace, s.dev.name(), s.dev.Status())
		return s.err
	}
	h, err := s.dev.driver.Open(ctx, s.dev.label, namespace, mode)
	s.err = err
	if err != nil {
		// A failed rebind leaves the Stream without a session.
		s.handle = 0
		s.opts.logf("error", ctx, "Open namespace %q failed: %v", namespace, err)
		return err
	}

	s.handle = h
	s.namespace = namespace
	s.mode = mode
	s.dirty = false
	s.opts.logf("info", ctx, "Open namespace %q (%s)", namespace, mode)
	return nil
}

// Close releases the namespace handle. Uncommitted writes are lost.
func (s *Stream) Close() error {
	if s.handle != 0 {
		if s.dirty {
			s.opts.logf("warn", context.Background(),
				"Close namespace %q discards uncommitted changes", s.namespace)
		}
		s.dev.driver.Close(s.handle)
	}
	s.handle = 0
	s.err = nil
	return nil
}

// Commit makes the writes of this session durable. The dirty flag is cleared
// only when the driver reports success.
func (s *Stream) Commit(ctx context.Context) error {
	if err := s.usable(); err != nil {
		s.err = err
		return err
	}
	err := s.dev.driver.Commit(ctx, s.handle)
	s.err = err
	s.opts.metrics.Commit(s.namespace, err)
	if err != nil {
		s.opts.logf("error", ctx, "Commit namespace %q failed: %v", s.namespace, err)
		return err
	}
	s.dirty = false
	return nil
}

// usable gates every driver call on an open handle and a usable device.
func (s *Stream) usable() error {
	if s.handle == 0 || !s.dev.IsOK() {
		return ErrInvalidState
	}
	return nil
}

// record stores the outcome of a typed operation as the Stream status.
func (s *Stream) record(err error) error {
	s.err = err
	return err
}

func (s *Stream) markDirty(ctx context.Context, key string, kind Kind) {
	s.dirty = true
	s.opts.metrics.PhysicalWrite(s.namespace, kind)
	s.opts.logf("debug", ctx, "Stored %s item %q in namespace %q", kind, key, s.namespace)
}

func (s *Stream) skipped(ctx context.Context, key string, kind Kind) {
	s.opts.metrics.SkippedWrite(s.namespace, kind)
	s.opts.logf("debug", ctx, "Item %q (%s) unchanged, write skipped", key, kind)
}

// Dirty reports whether the session holds writes that were not committed.
func (s *Stream) Dirty() bool { return s.dirty }

// Status returns the result of the last operation on the Stream.
func (s *Stream) Status() error { return s.err }

// IsOK reports whether the last operation succeeded.
func (s *Stream) IsOK() bool { return s.err == nil }

// IsOpen reports whether the Stream holds a namespace handle.
func (s *Stream) IsOpen() bool { return s.handle != 0 }

// Namespace returns the namespace of the current or last session.
func (s *Stream) Namespace() string { return s.namespace }

// Mode returns the access mode of the current or last session.
func (s *Stream) Mode() Mode { return s.mode }

// Device returns the partition the Stream works on.
func (s *Stream) Device() *Device { return s.dev }

func (s *Stream) String() string {
	return fmt.Sprintf("nvstore.Stream{%s:%s %s open=%t dirty=%t}",
		s.dev.label, s.namespace, s.mode, s.IsOpen(), s.dirty)
}
