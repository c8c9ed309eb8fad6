/*
Copyright 2026 The redactedos-net Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ntp

import (
	"sync"
	"time"
)

// ClockSync is the wall-clock this stack's NTP discipline steers. A
// hosted Go process cannot repoint the OS clock directly, so this
// stack carries its own software clock — an offset plus a disciplined
// frequency correction applied on top of time.Now() — and VirtualClock
// is the one
// implementation of it.
type ClockSync interface {
	IsSynchronized() bool
	NowUnixMicros() uint64
	SetUnixMicros(unixUs uint64)
	SetFreqPPM(ppm int32)
	SlewMicros(offsetUs int64)
}

// VirtualClock is a monotonic-anchored software clock: NowUnixMicros
// returns the real elapsed monotonic time since the last step, scaled
// by the disciplined frequency correction and offset by the last slew,
// added to the wall-clock value fixed at that step.
type VirtualClock struct {
	mu sync.Mutex

	synchronized bool
	freqPPM      int32

	stepWallUs  uint64
	stepMonoRef time.Time
	slewUs      int64
}

// NewVirtualClock returns a clock that is not yet synchronized.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{stepMonoRef: time.Now()}
}

func (c *VirtualClock) IsSynchronized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synchronized
}

// NowUnixMicros returns the current disciplined estimate of Unix-epoch
// microseconds.
func (c *VirtualClock) NowUnixMicros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.stepMonoRef).Microseconds()
	scaled := elapsed + (elapsed*int64(c.freqPPM))/1_000_000
	return uint64(int64(c.stepWallUs) + scaled + c.slewUs)
}

// SetUnixMicros steps the clock immediately to unixUs, resetting any
// in-progress slew (discipline_apply's step path).
func (c *VirtualClock) SetUnixMicros(unixUs uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepWallUs = unixUs
	c.stepMonoRef = time.Now()
	c.slewUs = 0
	c.synchronized = true
}

// SetFreqPPM sets the steady-state frequency correction applied to
// elapsed monotonic time.
func (c *VirtualClock) SetFreqPPM(ppm int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freqPPM = ppm
}

// SlewMicros nudges the clock by offsetUs without discarding history,
// the non-step correction path discipline_apply takes for small
// offsets (timer_sync_slew_us).
func (c *VirtualClock) SlewMicros(offsetUs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slewUs += offsetUs
}

// FrequencyPPM reports the steady-state frequency correction currently
// applied, for diagnostics (netctl ntp status).
func (c *VirtualClock) FrequencyPPM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.freqPPM)
}
