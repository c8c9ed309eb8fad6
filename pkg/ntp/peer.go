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
	"math"

	"github.com/redactedos/netstack/pkg/netaddr"
)

// FilterN bounds the per-peer sample history.
const FilterN = 8

// phiPPM is the dispersion growth rate applied to aging samples,
// ntp.c's NTP_PHI_PPM.
const phiPPM = 15

// Sample is one validated round-trip measurement.
type Sample struct {
	OffsetUs     int64
	DelayUs      uint64
	DispersionUs uint64
	MonoTimeUs   uint64
}

// Peer tracks one NTP server's sample history and derived statistics,
// grounded on ntp_peer_t.
type Peer struct {
	IP netaddr.IPv4

	filt  [FilterN]Sample
	count int

	RootDelayUs      uint64
	RootDispersionUs uint64

	BestOffsetUs    int64
	BestDelayUs     uint64
	BestDispersionUs uint64
	JitterUs        uint64
	RootDistanceUs  uint64
}

// AddSample pushes s to the front of the filter (displacing the
// oldest entry once full) and recomputes the derived statistics,
// mirroring ntp_poll_once's shift-and-recompute block.
func (p *Peer) AddSample(s Sample, nowMonoUs uint64) {
	for i := FilterN - 1; i > 0; i-- {
		p.filt[i] = p.filt[i-1]
	}
	p.filt[0] = s
	if p.count < FilterN {
		p.count++
	}
	p.recompute(nowMonoUs)
}

func (p *Peer) recompute(nowMonoUs uint64) {
	if p.count == 0 {
		return
	}

	best := 0
	var bestDelay, bestDisp uint64 = math.MaxUint64, math.MaxUint64
	for i := 0; i < p.count; i++ {
		ageUs := nowMonoUs - p.filt[i].MonoTimeUs
		grow := ageUs * phiPPM / 1_000_000
		disp := p.filt[i].DispersionUs + grow
		delay := p.filt[i].DelayUs
		if delay < bestDelay || (delay == bestDelay && disp < bestDisp) {
			best, bestDelay, bestDisp = i, delay, disp
		}
	}

	bestOff := p.filt[best].OffsetUs
	var sumSq uint64
	for i := 0; i < p.count; i++ {
		d := p.filt[i].OffsetUs - bestOff
		a := uint64(absInt64(d))
		sumSq += a * a
	}
	jitter := uint64(math.Sqrt(float64(sumSq) / float64(p.count)))

	p.BestOffsetUs = bestOff
	p.BestDelayUs = bestDelay
	p.BestDispersionUs = bestDisp
	p.JitterUs = jitter

	p.RootDistanceUs = p.RootDispersionUs + p.RootDelayUs/2 + bestDelay/2 + bestDisp + jitter
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// BestPeer returns the peer with the lowest root distance among
// candidates (ties broken by lowest delay), or nil if none have taken
// a sample yet. Mirrors ntp_poll_once's final peer-selection loop.
func BestPeer(candidates []*Peer) *Peer {
	var best *Peer
	for _, p := range candidates {
		if p == nil || p.count == 0 {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		if p.RootDistanceUs < best.RootDistanceUs ||
			(p.RootDistanceUs == best.RootDistanceUs && p.BestDelayUs < best.BestDelayUs) {
			best = p
		}
	}
	return best
}
