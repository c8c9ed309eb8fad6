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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/stack"
)

// controlRequest is one line of newline-delimited JSON netctl sends over
// the unix socket. Args is command-specific (a hostname, an IP, ...).
type controlRequest struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args,omitempty"`
}

// controlResponse is the matching reply: Result is command-specific and
// left as a raw interface{} so each handler can shape its own payload.
type controlResponse struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// controlServer serves inspection commands against a running *stack.Stack
// over a unix socket, playing the role a real OS's netlink/procfs surface
// plays for tools like "ip neigh" or "resolvectl status": one process per
// stack, one narrow RPC surface for an external CLI to query it.
type controlServer struct {
	ln *net.UnixListener
	st *stack.Stack
}

func newControlServer(path string, st *stack.Stack) (*controlServer, error) {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	return &controlServer{ln: ln, st: st}, nil
}

func (s *controlServer) close() {
	s.ln.Close()
	_ = os.Remove(s.ln.Addr().String())
}

func (s *controlServer) serve() {
	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			klog.Warningf("control: accept: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *controlServer) handle(conn *net.UnixConn) {
	defer conn.Close()
	dec := json.NewDecoder(bufio.NewReader(conn))
	var req controlRequest
	if err := dec.Decode(&req); err != nil {
		s.reply(conn, controlResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	s.reply(conn, s.dispatch(req))
}

func (s *controlServer) reply(conn *net.UnixConn, resp controlResponse) {
	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		klog.Warningf("control: encode response: %v", err)
	}
}

func (s *controlServer) dispatch(req controlRequest) controlResponse {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch req.Cmd {
	case "arp":
		return controlResponse{OK: true, Result: s.st.ARPEntries()}

	case "dhcp-status":
		return controlResponse{OK: true, Result: s.st.DHCPStatuses()}

	case "dns-resolve":
		if len(req.Args) != 1 {
			return controlResponse{Error: "dns-resolve takes exactly one argument: <name>"}
		}
		ip, err := s.st.ResolveA(ctx, req.Args[0])
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		return controlResponse{OK: true, Result: ip.String()}

	case "ping":
		if len(req.Args) != 1 {
			return controlResponse{Error: "ping takes exactly one argument: <ip>"}
		}
		dst, ok := netaddr.ParseIPv4(req.Args[0])
		if !ok {
			return controlResponse{Error: fmt.Sprintf("invalid IPv4 address %q", req.Args[0])}
		}
		status, rtt, err := s.st.ICMPPing(ctx, dst, uint16(os.Getpid()), 1, 4*time.Second, nil)
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		return controlResponse{OK: true, Result: fmt.Sprintf("%s rtt=%s", status, rtt)}

	case "ntp-status":
		return controlResponse{OK: true, Result: s.st.NTPStatus()}

	default:
		return controlResponse{Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}
