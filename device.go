package nvstore

import (
	"context"
	"sync"
)

// Device is the handle to one flash partition. It records the result of the
// last lifecycle operation; IsOK is the only way to learn whether the
// partition is usable. Device methods are safe for concurrent use.
type Device struct {
	driver Driver
	label  string
	opts   options

	mu  sync.RWMutex
	err error
}

// NewDevice initializes the partition labelled label (DefaultPartition for
// the default one). A failed initialization is recorded, not returned:
// inspect Status.
func NewDevice(ctx context.Context, drv Driver, label string, opts ...Option) *Device {
	d := &Device{
		driver: drv,
		label:  label,
		opts:   applyOptions(opts),
		err:    ErrNotInitialized,
	}
	d.opts.logf("warn", ctx, "Creating NVS device %s", d.name())
	_ = d.Initialize(ctx)
	return d
}

func (d *Device) name() string {
	if d.label == DefaultPartition {
		return "(default)"
	}
	return "\"" + d.label + "\""
}

// Label returns the partition label, DefaultPartition for the default one.
func (d *Device) Label() string { return d.label }

// Driver returns the storage driver the partition lives on.
func (d *Device) Driver() Driver { return d.driver }

// Initialize runs the driver's partition init and stores its result.
func (d *Device) Initialize(ctx context.Context) error {
	err := d.driver.Init(ctx, d.label)

	d.mu.Lock()
	d.err = err
	d.mu.Unlock()

	if err != nil {
		d.opts.logf("error", ctx, "Initialize NVS device %s failed: %v", d.name(), err)
	} else {
		d.opts.logf("info", ctx, "Initialize NVS device %s", d.name())
	}
	return err
}

// Reinitialize runs Initialize again unconditionally.
func (d *Device) Reinitialize(ctx context.Context) error {
	d.opts.logf("warn", ctx, "Re-initialize NVS device %s", d.name())
	err := d.Initialize(ctx)
	d.opts.metrics.Reinit(d.label, err)
	return err
}

// Recover re-initializes the partition once if its status is Recoverable.
// It reports whether a re-initialization was attempted; the outcome is in
// the returned error and in Status afterwards.
func (d *Device) Recover(ctx context.Context) (bool, error) {
	if !Recoverable(d.Status()) {
		return false, d.Status()
	}
	return true, d.Reinitialize(ctx)
}

// Erase wipes the partition and initializes it afresh. It is never called
// implicitly: all namespaces of the partition are lost.
func (d *Device) Erase(ctx context.Context) error {
	d.opts.logf("warn", ctx, "Erase NVS device %s", d.name())
	if err := d.driver.Erase(ctx, d.label); err != nil {
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		d.opts.logf("error", ctx, "Erase NVS device %s failed: %v", d.name(), err)
		return err
	}
	return d.Initialize(ctx)
}

// Status returns the result of the last lifecycle operation.
func (d *Device) Status() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// IsOK reports whether the partition is usable.
func (d *Device) IsOK() bool {
	return d.Status() == nil
}

// Partitions owns one Device per partition label. It replaces a process-wide
// singleton: construct it once at startup and hand it to the code that opens
// Streams.
type Partitions struct {
	driver Driver
	opts   []Option

	mu      sync.Mutex
	devices map[string]*Device
}

// NewPartitions creates an empty registry on drv. Devices are initialized
// on first access with opts.
func NewPartitions(drv Driver, opts ...Option) *Partitions {
	return &Partitions{
		driver:  drv,
		opts:    opts,
		devices: make(map[string]*Device),
	}
}

// Get returns the Device for label, creating and initializing it on first
// access. Concurrent first accesses initialize the partition once.
func (p *Partitions) Get(ctx context.Context, label string) *Device {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.devices[label]; ok {
		return d
	}
	d := NewDevice(ctx, p.driver, label, p.opts...)
	p.devices[label] = d
	return d
}

// Current returns the default partition's Device.
func (p *Partitions) Current(ctx context.Context) *Device {
	return p.Get(ctx, DefaultPartition)
}

// Partition returns the default Device after giving a truncated or
// version-mismatched partition one chance to re-initialize. If that fails
// too, the new status is visible through IsOK.
func (p *Partitions) Partition(ctx context.Context) *Device {
	d := p.Current(ctx)
	if _, err := d.Recover(ctx); err != nil {
		d.opts.logf("warn", ctx, "NVS device %s is not usable: %v", d.name(), err)
	}
	return d
}

// Check reports whether the default partition is usable.
func (p *Partitions) Check(ctx context.Context) bool {
	return p.Current(ctx).IsOK()
}
