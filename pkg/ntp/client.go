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
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/udp"
)

// PollInterval paces Client.Run.
const PollInterval = 60 * time.Second

// year2000UnixUs sanity-floors an accepted server timestamp, ntp.c's
// year2000 constant.
const year2000UnixUs = 946684800 * 1_000_000

// maxFutureSkew bounds how far ahead of an already-synchronized clock
// a server reply may claim to be before it's rejected as bogus.
const maxFutureSkew = 24 * time.Hour

// Client polls up to two NTP servers per round, filters their replies
// into Peer histories, and steers a ClockSync via Discipline, grounded
// on ntp.c's ntp_poll_once.
type Client struct {
	mgr   *iface.Manager
	udp   *udp.Table
	clock ClockSync
	disc  *Discipline
	sock  *udp.Socket

	peers [2]*Peer
}

// NewClient builds a Client with its own ephemeral query socket,
// disciplining clock.
func NewClient(mgr *iface.Manager, udpTable *udp.Table, clock ClockSync) (*Client, error) {
	sock := udpTable.CreateSocket()
	if err := udpTable.BindUDP(sock, udp.BindSpec{Scope: ipv4.ScopeUnbound}, 0); err != nil {
		return nil, err
	}
	return &Client{
		mgr:   mgr,
		udp:   udpTable,
		clock: clock,
		disc:  NewDiscipline(clock),
		sock:  sock,
	}, nil
}

// Run polls every PollInterval until ctx ends.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		if err := c.PollOnce(ctx, PollInterval/2); err != nil {
			klog.V(3).Infof("ntp: poll failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce discovers up to two configured NTP servers, queries both,
// filters whichever replies arrive within timeout, and disciplines the
// clock from the best one.
func (c *Client) PollOnce(ctx context.Context, timeout time.Duration) error {
	s0, s1 := c.discoverServers()
	if s0.IsUnspecified() && s1.IsUnspecified() {
		return fmt.Errorf("%w: no ntp server configured", neterr.NotFound)
	}

	type inflight struct {
		server netaddr.IPv4
		t1Us   uint64
		origBE uint64
	}
	var sent []inflight
	if !s0.IsUnspecified() {
		if f, err := c.sendQuery(ctx, s0); err == nil {
			sent = append(sent, f)
		}
	}
	if !s1.IsUnspecified() && s1 != s0 {
		if f, err := c.sendQuery(ctx, s1); err == nil {
			sent = append(sent, f)
		}
	}
	if len(sent) == 0 {
		return fmt.Errorf("%w: failed to send any ntp query", neterr.Timeout)
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok := false
	for {
		d, err := c.udp.RecvFrom(pollCtx, c.sock)
		if err != nil {
			break
		}
		if d.From.IsV6 || d.From.Port != ServerPort {
			continue
		}
		var match *inflight
		for i := range sent {
			if sent[i].server == d.From.V4 {
				match = &sent[i]
				break
			}
		}
		if match == nil {
			continue
		}

		var resp Packet
		if err := resp.Unmarshal(d.Data); err != nil {
			klog.V(4).Infof("ntp: malformed reply from %s: %v", d.From.V4, err)
			continue
		}
		if !validResponse(&resp, match.origBE) {
			continue
		}

		t4Us := uint64(time.Now().UnixMicro())
		monoNowUs := uint64(time.Now().UnixMicro())
		if c.processReply(&resp, match.server, match.t1Us, t4Us, monoNowUs) {
			ok = true
		}
	}
	if !ok {
		return neterr.Timeout
	}

	best := BestPeer(c.peerSlice())
	if best == nil {
		return neterr.Timeout
	}
	nowMonoUs := uint64(time.Now().UnixMicro())
	serverUnixUs := uint64(int64(nowMonoUs) + best.BestOffsetUs)
	c.disc.Apply(best.BestOffsetUs, best.JitterUs, serverUnixUs, nowMonoUs)
	return nil
}

func (c *Client) peerSlice() []*Peer { return c.peers[:] }

func (c *Client) sendQuery(ctx context.Context, server netaddr.IPv4) (struct {
	server netaddr.IPv4
	t1Us   uint64
	origBE uint64
}, error) {
	t1Us := uint64(time.Now().UnixMicro())
	txBE := UnixMicrosToNTP64(t1Us)

	p := &Packet{VN: Version, Mode: ModeClient, Poll: 6, Precision: -20, TxTime: txBE}
	if err := c.udp.SendTo(ctx, c.sock, netaddr.V4Endpoint(server, ServerPort), p.Marshal()); err != nil {
		return struct {
			server netaddr.IPv4
			t1Us   uint64
			origBE uint64
		}{}, err
	}
	return struct {
		server netaddr.IPv4
		t1Us   uint64
		origBE uint64
	}{server, t1Us, txBE}, nil
}

func validResponse(r *Packet, expectedOrigBE uint64) bool {
	if r.LI == 3 {
		return false
	}
	if r.Mode != ModeServer {
		return false
	}
	if r.VN < 3 || r.VN > 4 {
		return false
	}
	if r.Stratum == 0 || r.Stratum >= 16 {
		return false
	}
	if r.OrigTime != expectedOrigBE {
		return false
	}
	if r.RecvTime == 0 || r.TxTime == 0 {
		return false
	}
	rx := NTP64ToUnixMicros(r.RecvTime)
	tx := NTP64ToUnixMicros(r.TxTime)
	return tx >= rx
}

// processReply validates the timestamp range, updates the
// corresponding Peer's filter, and reports whether a usable sample was
// recorded.
func (c *Client) processReply(r *Packet, server netaddr.IPv4, t1Us, t4Us, monoNowUs uint64) bool {
	t2 := NTP64ToUnixMicros(r.RecvTime)
	t3 := NTP64ToUnixMicros(r.TxTime)
	if t2 == 0 || t3 == 0 {
		return false
	}

	rtt := int64(t4Us-t1Us) - int64(t3-t2)
	if rtt < 0 {
		rtt = 0
	}
	off := (int64(t2-t1Us) + int64(t3-t4Us)) / 2
	serverUnixUs := uint64(int64(t4Us) + off)

	if serverUnixUs < year2000UnixUs {
		return false
	}
	if c.clock.IsSynchronized() {
		nowUs := c.clock.NowUnixMicros()
		if nowUs != 0 && serverUnixUs > nowUs+uint64(maxFutureSkew.Microseconds()) {
			return false
		}
	}

	p := c.peerFor(server)
	p.RootDelayUs = shortToMicros(r.RootDelay)
	p.RootDispersionUs = shortToMicros(r.RootDispersion)

	p.AddSample(Sample{
		OffsetUs:     off,
		DelayUs:      uint64(rtt),
		DispersionUs: uint64(rtt)/2 + 1000,
		MonoTimeUs:   monoNowUs,
	}, monoNowUs)
	return true
}

func (c *Client) peerFor(server netaddr.IPv4) *Peer {
	for i := range c.peers {
		if c.peers[i] != nil && c.peers[i].IP == server {
			return c.peers[i]
		}
	}
	for i := range c.peers {
		if c.peers[i] == nil {
			c.peers[i] = &Peer{IP: server}
			return c.peers[i]
		}
	}
	return c.peers[0]
}

// discoverServers returns the first two distinct NTP servers configured
// across any L3 interface's runtime options, mirroring
// discover_servers's scan order.
func (c *Client) discoverServers() (s0, s1 netaddr.IPv4) {
	for _, l2 := range c.mgr.L2s() {
		for _, l3 := range c.mgr.L3sOf(l2.IfIndex) {
			opts := l3.RuntimeOpts()
			for _, cand := range opts.NTP {
				if cand.IsUnspecified() || cand == s0 || cand == s1 {
					continue
				}
				if s0.IsUnspecified() {
					s0 = cand
				} else if s1.IsUnspecified() {
					s1 = cand
				}
			}
			if !s0.IsUnspecified() && !s1.IsUnspecified() {
				return
			}
		}
	}
	return
}
