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

var dhcpCmd = &cobra.Command{
	Use:   "dhcp",
	Short: "DHCP client commands",
}

var dhcpStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the DHCP FSM state of every DHCP-managed interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callControl(controlSock, "dhcp-status")
		if err != nil {
			return err
		}
		var statuses []stack.DHCPStatus
		if err := json.Unmarshal(resp.Result, &statuses); err != nil {
			return fmt.Errorf("decode dhcp statuses: %w", err)
		}
		if len(statuses) == 0 {
			fmt.Println("no DHCP-managed interfaces")
			return nil
		}
		fmt.Printf("%-8s %-10s %s\n", "L3ID", "STATE", "BOUND")
		for _, s := range statuses {
			fmt.Printf("%-8d %-10s %t\n", s.L3ID, s.State, s.Bound)
		}
		return nil
	},
}

func init() {
	dhcpCmd.AddCommand(dhcpStatusCmd)
}
