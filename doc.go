// Package nvstore provides typed access to a flash-resident, namespace-partitioned key-value store.
//
// # Overview
//
// nvstore sits on top of a flash storage Driver and lets callers read and write
// fixed-width integers, booleans, strings and blobs by key inside a namespace.
// Flash cells wear out, so every write first reads the stored value and reaches
// the driver only when the value changes or the key is new.
//
// # Architecture
//
// The package consists of three abstractions:
//
// 1. Device: one partition, its initialization state and last error
// 2. Stream: a session on one namespace with a dirty flag and explicit Commit
// 3. Driver: the storage backend (Memory here, boltdb for files on disk)
//
// Partitions keeps one Device per label and is meant to be created once at
// startup and passed to the code that needs storage.
//
// # Quick Start
//
//	parts := nvstore.NewPartitions(nvstore.NewMemory())
//	ctx := context.Background()
//
//	s, err := nvstore.OpenStream(ctx, parts.Partition(ctx), "cfg", nvstore.ReadWrite)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	_ = nvstore.Write[uint32](ctx, s, "count", 5)
//	_ = s.WriteString(ctx, "name", "pump-3")
//	if err := s.Commit(ctx); err != nil {
//	    return err
//	}
//
//	count, _ := nvstore.Read[uint32](ctx, s, "count")
//
// # Durability
//
// Writes are staged on the namespace handle. Commit makes them durable; Close
// without Commit silently drops them:
//
//	Closed -> Open -> (write, value changed) Dirty -> Commit -> Clean
//
// A write that does not change the stored value leaves the state untouched.
//
// # Recovery
//
// A partition reporting ErrNoFreePages or ErrNewVersionFound is given one
// re-initialization by Partitions.Partition or Device.Recover. Erase is never
// invoked automatically.
//
// # Thread Safety
//
// Device, Partitions and the drivers are safe for concurrent use. A Stream is
// not: give each goroutine its own.
//
// # Error Handling
//
// The package defines sentinel errors for the driver result codes:
//
//	_, err := nvstore.Read[int32](ctx, s, "missing")
//	if errors.Is(err, nvstore.ErrNotFound) {
//	    // Handle missing key
//	}
//
// Status on a Device or a Stream returns the error of its last operation.
package nvstore
