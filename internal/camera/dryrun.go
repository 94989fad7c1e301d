package camera

import (
	"fmt"
	"sync"

	"github.com/banshee-data/camsync/internal/monitoring"
)

// DryRun is an in-memory trigger register bank. It lets the sync loop run
// end to end without camera hardware and records every write.
type DryRun struct {
	mu              sync.Mutex
	logf            monitoring.Logf
	defaultExposure uint32
	capability      Capability
	devices         map[string]*dryRunRegister
}

type dryRunRegister struct {
	delay    uint32
	exposure uint32
	writes   int
	failNext error
}

// NewDryRun returns a register bank where every device starts with delay 0
// and the given exposure.
func NewDryRun(defaultExposure uint32, logf monitoring.Logf) *DryRun {
	return &DryRun{
		logf:            monitoring.OrDefault(logf),
		defaultExposure: defaultExposure,
		capability:      DefaultCapability,
		devices:         make(map[string]*dryRunRegister),
	}
}

func (d *DryRun) register(device string) *dryRunRegister {
	r, ok := d.devices[device]
	if !ok {
		r = &dryRunRegister{exposure: d.defaultExposure}
		d.devices[device] = r
	}
	return r
}

// SetExposure changes the exposure reported for device.
func (d *DryRun) SetExposure(device string, exposure uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.register(device).exposure = exposure
}

// SetCapability changes the sensor timing returned by QueryCapability.
func (d *DryRun) SetCapability(c Capability) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capability = c
}

// FailNext makes the next read or write on device return err.
func (d *DryRun) FailNext(device string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.register(device).failNext = err
}

// Writes returns how many times device has been programmed.
func (d *DryRun) Writes(device string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register(device).writes
}

// Delay returns the currently programmed delay for device.
func (d *DryRun) Delay(device string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register(device).delay
}

// ReadTrigger implements TriggerController.
func (d *DryRun) ReadTrigger(device string) (uint32, uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.register(device)
	if err := r.failNext; err != nil {
		r.failNext = nil
		return 0, 0, err
	}
	return r.delay, r.exposure, nil
}

// WriteTrigger implements TriggerController.
func (d *DryRun) WriteTrigger(device string, delay uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.register(device)
	if err := r.failNext; err != nil {
		r.failNext = nil
		return 0, err
	}
	r.delay = delay
	r.writes++
	d.logf("[dry-run] %s: trigger delay %d us (exposure %d us)", device, delay, r.exposure)
	return r.exposure, nil
}

// QueryCapability implements CapabilityQuerier.
func (d *DryRun) QueryCapability(device string) (Capability, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if device == "" {
		return Capability{}, fmt.Errorf("empty device name")
	}
	return d.capability, nil
}
