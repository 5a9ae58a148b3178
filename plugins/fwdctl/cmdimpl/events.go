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
	"net/url"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/events"
	"github.com/contiv/reactivefwd/plugins/fwdctl/http"
)

const (
	eventsPath = "/fwd/events"
	timeFormat = "15:04:05.000"
)

// PrintEvents prints recorded decision events, optionally filtered by <kind>
// and limited to the <last> most recent ones (<last> <= 0 prints all).
func PrintEvents(w io.Writer, server string, kind string, last int) error {
	query := url.Values{}
	if kind != "" {
		query.Set("kind", kind)
	}
	if last > 0 {
		query.Set("last", strconv.Itoa(last))
	}
	path := eventsPath
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	body, err := http.GetAgentInfo(server, path)
	if err != nil {
		return err
	}
	var history []events.Event
	if err := json.Unmarshal(body, &history); err != nil {
		return errors.Wrap(err, "failed to decode event history")
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "TIME\tKIND\tATTRIBUTES\n")
	for _, ev := range history {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.Time.Format(timeFormat), ev.Kind, formatAttrs(ev.Attrs))
	}
	return tw.Flush()
}

func formatAttrs(attrs events.Attrs) string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var fields []string
	for _, key := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", key, attrs[key]))
	}
	return strings.Join(fields, " ")
}
