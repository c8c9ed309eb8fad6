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

var ntpCmd = &cobra.Command{
	Use:   "ntp",
	Short: "NTP client commands",
}

var ntpStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the disciplined clock's synchronization state",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := callControl(controlSock, "ntp-status")
		if err != nil {
			return err
		}
		var st stack.NTPClockStatus
		if err := json.Unmarshal(resp.Result, &st); err != nil {
			return fmt.Errorf("decode ntp status: %w", err)
		}
		fmt.Printf("synchronized: %t\n", st.Synchronized)
		fmt.Printf("unix_micros:  %d\n", st.UnixMicros)
		fmt.Printf("freq_ppm:     %.3f\n", st.FreqPPM)
		return nil
	},
}

func init() {
	ntpCmd.AddCommand(ntpStatusCmd)
}
