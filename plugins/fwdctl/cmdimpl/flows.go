// Copyright (c) 2019 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmdimpl

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd"
	"github.com/contiv/reactivefwd/plugins/fwdctl/http"
)

const flowsPath = "/fwd/flows"

// PrintFlows prints flow rules installed by the reactive forwarding
// application in a table format, optionally only those of <device>.
func PrintFlows(w io.Writer, server string, device string) error {
	body, err := http.GetAgentInfo(server, flowsPath)
	if err != nil {
		return err
	}
	var flows []fwd.FlowRecord
	if err := json.Unmarshal(body, &flows); err != nil {
		return errors.Wrap(err, "failed to decode installed flows")
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "DEVICE\tIN_PORT\tETH_SRC\tETH_DST\tOUTPUT\tPRIORITY\tTABLE\tTIMEOUT\n")
	for _, flow := range flows {
		if device != "" && flow.Device != device {
			continue
		}
		timeout := "permanent"
		if !flow.Permanent {
			timeout = flow.Timeout
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			flow.Device, flow.InPort, flow.SrcMAC, flow.DstMAC, flow.OutPort,
			flow.Priority, flow.Table, timeout)
	}
	return tw.Flush()
}
