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

	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd"
	"github.com/contiv/reactivefwd/plugins/fwdctl/http"
)

const statusPath = "/fwd/status"

// PrintStatus prints the state of the reactive forwarding application.
func PrintStatus(w io.Writer, server string) error {
	body, err := http.GetAgentInfo(server, statusPath)
	if err != nil {
		return err
	}
	var status fwd.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return errors.Wrap(err, "failed to decode status")
	}

	state := "stopped"
	if status.Started {
		state = "started at " + status.StartedAt.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(w, "Application:     %s\n", status.App)
	fmt.Fprintf(w, "Interception:    %s\n", state)
	fmt.Fprintf(w, "Edge policy:     %s\n", status.EdgePolicy)
	fmt.Fprintf(w, "Installed flows: %d\n", status.InstalledFlows)
	return nil
}
