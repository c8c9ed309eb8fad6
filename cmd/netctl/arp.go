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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redactedos/netstack/pkg/stack"
)

var arpCmd = &cobra.Command{
	Use:   "arp",
	Short: "Show the ARP neighbor cache of every attached interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callControl(controlSock, "arp")
		if err != nil {
			return err
		}
		var entries []stack.ARPEntry
		if err := json.Unmarshal(resp.Result, &entries); err != nil {
			return fmt.Errorf("decode arp entries: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("no ARP entries")
			return nil
		}
		fmt.Printf("%-6s %-16s %-18s %-6s %s\n", "IFACE", "IP", "MAC", "STATIC", "TTL(ms)")
		for _, e := range entries {
			fmt.Printf("%-6d %-16s %02x:%02x:%02x:%02x:%02x:%02x %-6t %d\n",
				e.IfIndex, e.IP, e.MAC[0], e.MAC[1], e.MAC[2], e.MAC[3], e.MAC[4], e.MAC[5], e.Static, e.TTLMs)
		}
		return nil
	},
}
