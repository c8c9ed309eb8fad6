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

// Command netctl inspects a running netd instance over its control
// socket: ARP table, DHCP lease state, DNS resolution, ping, and NTP
// clock status.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

var controlSock string

var rootCmd = &cobra.Command{
	Use:   "netctl",
	Short: "Inspect a running netd instance",
	Long:  `netctl queries a running netd daemon's ARP table, DHCP leases, DNS resolver, ICMP, and NTP clock over its local control socket.`,
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		klog.Infof("received signal: %v, shutting down", sig)
		cancel()
	}()

	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlag(flag.CommandLine.Lookup("v"))
	pflag.CommandLine.AddGoFlag(flag.CommandLine.Lookup("logtostderr"))
	if err := pflag.CommandLine.Set("logtostderr", "true"); err != nil {
		klog.Fatal(err)
	}
	rootCmd.PersistentFlags().StringVar(&controlSock, "control-socket", "/run/netd.sock", "path to netd's control socket")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		klog.Info(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(arpCmd)
	rootCmd.AddCommand(dhcpCmd)
	rootCmd.AddCommand(dnsCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(ntpCmd)
}
