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

// Command netd runs one netstack instance: it attaches a NIC, configures
// its IPv4 address (static or DHCP), and serves healthz/metrics HTTP
// endpoints plus a local control socket that netctl talks to.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
	"github.com/redactedos/netstack/pkg/stack"
)

var (
	ifaceName   string
	hostIface   string
	staticIP    string
	staticMask  string
	staticGW    string
	useDHCP     bool
	enableMDNS  bool
	bindAddress string
	controlSock string

	ready atomic.Bool
)

func init() {
	flag.StringVar(&ifaceName, "iface", "eth0", "name to assign the attached NIC")
	flag.StringVar(&hostIface, "host-iface", "", "name of an existing host link to bind a raw AF_PACKET socket to; if empty, an in-memory driver is used instead")
	flag.StringVar(&staticIP, "static-ip", "", "static IPv4 address to assign (mutually exclusive with -dhcp)")
	flag.StringVar(&staticMask, "static-mask", "255.255.255.0", "subnet mask for -static-ip")
	flag.StringVar(&staticGW, "static-gw", "", "default gateway for -static-ip")
	flag.BoolVar(&useDHCP, "dhcp", false, "configure the interface via DHCP instead of -static-ip")
	flag.BoolVar(&enableMDNS, "mdns", true, "advertise and resolve .local names over mDNS")
	flag.StringVar(&bindAddress, "bind-address", ":9177", "address for the healthz and metrics HTTP server")
	flag.StringVar(&controlSock, "control-socket", "/run/netd.sock", "unix socket netctl connects to for inspection commands")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: netd [options]\n\n")
		flag.PrintDefaults()
	}
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	printVersion()
	flag.VisitAll(func(f *flag.Flag) {
		klog.Infof("FLAG: --%s=%q", f.Name, f.Value)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(bindAddress, mux)
	}()

	st, err := stack.New(stack.Config{EnableMDNS: enableMDNS})
	if err != nil {
		klog.Fatalf("stack.New: %v", err)
	}

	// A hosted process has no PCI bus to enumerate virtio-net devices off
	// of, so there is exactly one driver to attach: either a raw socket
	// bound to an existing host link (-host-iface) or, lacking one, an
	// in-memory driver. AddDriver names and registers whatever the bus
	// finds.
	bus := netdev.NewBus()
	var drv netdev.Driver
	var addr string
	if hostIface != "" {
		drv = netdev.NewRawSocketDriver(netdev.KindEthernet)
		addr = hostIface
	} else {
		drv = netdev.NewMemDriver(randomMAC(), 1500, netdev.KindEthernet)
		addr = ifaceName
	}
	name := bus.AddDriver(addr, 0, drv)
	if name == "" {
		klog.Fatalf("netdev: failed to initialize %s", addr)
	}
	bus.AddLoopback()

	var l3 *iface.L3Ipv4Interface
	for _, n := range bus.Interfaces() {
		l2, err := st.AddInterface(n.Name, n.Driver.MAC(), n.Driver.MTU(), n.Driver.Kind(), n.Driver)
		if err != nil {
			klog.Fatalf("AddInterface(%s): %v", n.Name, err)
		}
		if n.Name != name {
			continue
		}
		switch {
		case useDHCP:
			l3, err = st.ConfigureDHCP(l2)
		case staticIP != "":
			l3, err = configureStatic(st, l2)
		}
		if err != nil {
			klog.Fatalf("configuring %s: %v", n.Name, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	st.Spawn(ctx)
	defer st.Stop()

	srv, err := newControlServer(controlSock, st)
	if err != nil {
		klog.Fatalf("control socket %s: %v", controlSock, err)
	}
	go srv.serve()
	defer srv.close()

	ready.Store(true)
	if l3 != nil {
		klog.Infof("netd started, %s bound to %s", ifaceName, l3.IP())
	} else {
		klog.Infof("netd started, %s unconfigured", ifaceName)
	}

	select {
	case sig := <-signalCh:
		klog.Infof("received shutdown signal: %q, initiating graceful shutdown", sig)
		cancel()
	case <-ctx.Done():
		klog.Info("context cancelled, initiating graceful shutdown")
	}
}

func configureStatic(st *stack.Stack, l2 *iface.L2Interface) (*iface.L3Ipv4Interface, error) {
	ip, ok := netaddr.ParseIPv4(staticIP)
	if !ok {
		return nil, fmt.Errorf("invalid -static-ip %q", staticIP)
	}
	mask, ok := netaddr.ParseIPv4(staticMask)
	if !ok {
		return nil, fmt.Errorf("invalid -static-mask %q", staticMask)
	}
	gw := netaddr.Zero
	if staticGW != "" {
		gw, ok = netaddr.ParseIPv4(staticGW)
		if !ok {
			return nil, fmt.Errorf("invalid -static-gw %q", staticGW)
		}
	}
	return st.ConfigureStatic(l2, ip, mask, gw, iface.RuntimeOpts{})
}

// randomMAC returns a locally-administered unicast MAC, since there is no
// vendor-assigned address to read off a simulated NIC.
func randomMAC() [6]byte {
	mac := [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	if h, err := os.Hostname(); err == nil && len(h) > 0 {
		mac[5] = byte(len(h))
	}
	return mac
}

func printVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	var vcsRevision, vcsTime string
	for _, f := range info.Settings {
		switch f.Key {
		case "vcs.revision":
			vcsRevision = f.Value
		case "vcs.time":
			vcsTime = f.Value
		}
	}
	klog.Infof("netd go %s build: %s time: %s", info.GoVersion, vcsRevision, vcsTime)
}
