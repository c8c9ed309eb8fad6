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
)

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "DNS resolver commands",
}

var dnsResolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Resolve a hostname to an IPv4 address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callControl(controlSock, "dns-resolve", args[0])
		if err != nil {
			return err
		}
		var ip string
		if err := json.Unmarshal(resp.Result, &ip); err != nil {
			return fmt.Errorf("decode resolved address: %w", err)
		}
		fmt.Println(ip)
		return nil
	},
}

func init() {
	dnsCmd.AddCommand(dnsResolveCmd)
}
