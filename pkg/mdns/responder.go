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

package mdns

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/dns"
	"github.com/redactedos/netstack/pkg/netaddr"
)

// Service is one advertised mDNS service instance, mirroring the
// fields mdns_register_service takes in mdns_responder.h: an instance
// name, a service type ("_http._tcp" style), and the port it answers
// on. PTR/SRV/TXT records are synthesized from these at announce time.
type Service struct {
	Instance string
	Type     string
	Port     uint16
	TXT      []string
}

func (s Service) serviceName() string  { return s.Type + ".local" }
func (s Service) instanceName() string { return s.Instance + "." + s.Type + ".local" }

// Responder answers queries for this host's name and its registered
// services, and runs the announce/keepalive/goodbye burst cadence on a
// register/deregister/tick API shape.
type Responder struct {
	t        *transport
	hostname string
	mac      [6]byte
	ip       netaddr.IPv4

	mu       sync.Mutex
	services map[string]Service

	announce chan struct{}

	// queryLimiter caps replies triggered by incoming queries to once a
	// second, the rate RFC 6762 §6 asks a responder to hold unsolicited
	// multicast replies to; it does not gate the announce/keepalive/
	// goodbye bursts, which have their own fixed cadence.
	queryLimiter *rate.Limiter
}

func newResponder(t *transport, mac [6]byte, ip netaddr.IPv4) *Responder {
	r := &Responder{
		t:            t,
		hostname:     Hostname(mac),
		mac:          mac,
		ip:           ip,
		services:     make(map[string]Service),
		announce:     make(chan struct{}, 1),
		queryLimiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	t.setQueryHandler(r.handleQuery)
	return r
}

// RegisterService adds or replaces svc and schedules an announce burst.
func (r *Responder) RegisterService(svc Service) {
	r.mu.Lock()
	r.services[svc.instanceName()] = svc
	r.mu.Unlock()
	r.requestAnnounce()
}

// DeregisterService removes a previously registered service and sends
// a 3-packet TTL=0 goodbye burst for it.
func (r *Responder) DeregisterService(instance, svcType string) {
	name := instance + "." + svcType + ".local"
	r.mu.Lock()
	svc, ok := r.services[name]
	delete(r.services, name)
	r.mu.Unlock()
	if !ok {
		return
	}
	for i := 0; i < GoodbyeBurstCount; i++ {
		r.sendServiceRecords(svc, 0)
		if i < GoodbyeBurstCount-1 {
			time.Sleep(AnnounceBurstSpacing)
		}
	}
}

func (r *Responder) requestAnnounce() {
	select {
	case r.announce <- struct{}{}:
	default:
	}
}

// Run drives the announce burst, periodic keepalives, and the final
// goodbye burst until ctx ends. The transport's receive loop is started
// by New, not by Run.
func (r *Responder) Run(ctx context.Context) {
	r.sendAnnounceBurst()

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.sendGoodbyeBurst()
			return
		case <-ticker.C:
			r.sendKeepalive()
		case <-r.announce:
			r.sendAnnounceBurst()
		}
	}
}

func (r *Responder) sendAnnounceBurst() {
	for i := 0; i < AnnounceBurstCount; i++ {
		r.sendAllRecords(recordTTL)
		if i < AnnounceBurstCount-1 {
			time.Sleep(AnnounceBurstSpacing)
		}
	}
}

func (r *Responder) sendKeepalive() {
	r.sendAllRecords(recordTTL)
}

func (r *Responder) sendGoodbyeBurst() {
	for i := 0; i < GoodbyeBurstCount; i++ {
		r.sendAllRecords(0)
		if i < GoodbyeBurstCount-1 {
			time.Sleep(AnnounceBurstSpacing)
		}
	}
}

func (r *Responder) sendAllRecords(ttl uint32) {
	answers := []dns.RR{r.hostRecord(ttl)}
	r.mu.Lock()
	services := make([]Service, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s)
	}
	r.mu.Unlock()
	for _, s := range services {
		answers = append(answers, r.serviceRecords(s, ttl)...)
	}
	r.send(answers)
}

func (r *Responder) sendServiceRecords(svc Service, ttl uint32) {
	r.send(r.serviceRecords(svc, ttl))
}

func (r *Responder) hostRecord(ttl uint32) dns.RR {
	b := r.ip.Bytes()
	return dns.RR{
		Name:  r.hostname,
		Type:  dns.TypeA,
		Class: dns.ClassIN | dns.ClassCacheFlushBit,
		TTL:   ttl,
		Data:  b[:],
	}
}

func (r *Responder) serviceRecords(svc Service, ttl uint32) []dns.RR {
	ptr := dns.RR{
		Name:  svc.serviceName(),
		Type:  dns.TypePTR,
		Class: dns.ClassIN,
		TTL:   ttl,
		Data:  encodeDomainName(svc.instanceName()),
	}
	srv := dns.RR{
		Name:  svc.instanceName(),
		Type:  dns.TypeSRV,
		Class: dns.ClassIN | dns.ClassCacheFlushBit,
		TTL:   ttl,
		Data:  encodeSRVData(svc.Port, r.hostname),
	}
	txt := dns.RR{
		Name:  svc.instanceName(),
		Type:  dns.TypeTXT,
		Class: dns.ClassIN | dns.ClassCacheFlushBit,
		TTL:   ttl,
		Data:  encodeTXTData(svc.TXT),
	}
	return []dns.RR{ptr, srv, txt}
}

func (r *Responder) send(answers []dns.RR) {
	msg := dns.EncodeResponse(0, dns.FlagResponse|dns.FlagAuthority, nil, answers)
	if err := r.t.sendMulticast(msg); err != nil {
		klog.V(3).Infof("mdns: announce send failed: %v", err)
	}
}

// handleQuery answers an incoming query for this host's name or one of
// its registered services, if it matches.
func (r *Responder) handleQuery(from netaddr.Endpoint, msg dns.Message) {
	var answers []dns.RR
	for _, q := range msg.Questions {
		if q.Name == r.hostname && (q.Type == dns.TypeA || q.Type == 255) {
			answers = append(answers, r.hostRecord(recordTTL))
			continue
		}
		r.mu.Lock()
		for _, svc := range r.services {
			if q.Name == svc.serviceName() || q.Name == svc.instanceName() {
				answers = append(answers, r.serviceRecords(svc, recordTTL)...)
			}
		}
		r.mu.Unlock()
	}
	if len(answers) == 0 {
		return
	}
	if !r.queryLimiter.Allow() {
		klog.V(4).Infof("mdns: dropping reply to %s, query response rate exceeded", from)
		return
	}
	r.send(answers)
}

func encodeDomainName(name string) []byte {
	buf := new(bytes.Buffer)
	if err := dns.EncodeName(buf, name); err != nil {
		return []byte{0}
	}
	return buf.Bytes()
}

func encodeSRVData(port uint16, target string) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, uint16(0)) // priority
	binary.Write(buf, binary.BigEndian, uint16(0)) // weight
	binary.Write(buf, binary.BigEndian, port)
	dns.EncodeName(buf, target)
	return buf.Bytes()
}

func encodeTXTData(entries []string) []byte {
	buf := new(bytes.Buffer)
	if len(entries) == 0 {
		buf.WriteByte(0)
		return buf.Bytes()
	}
	for _, e := range entries {
		if len(e) > 255 {
			e = e[:255]
		}
		buf.WriteByte(byte(len(e)))
		buf.WriteString(e)
	}
	return buf.Bytes()
}
