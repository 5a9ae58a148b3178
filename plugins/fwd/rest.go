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

package fwd

import (
	"net/http"
	"strconv"
	"time"

	"github.com/unrolled/render"

	"github.com/contiv/reactivefwd/plugins/fwd/events"
	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

const (
	// prefix used for REST urls of the application.
	urlPrefix = "/fwd/"

	// flowsURL is URL used to obtain the installed flow rules.
	flowsURL = urlPrefix + "flows"

	// eventsURL is URL used to obtain the recorded decision events.
	// Optional arguments:
	//   * kind (only events of the given kind)
	//   * last (max. number of latest records to return)
	eventsURL = urlPrefix + "events"
	kindArg   = "kind"
	lastArg   = "last"

	// statusURL is URL used to obtain the state of the interception.
	statusURL = urlPrefix + "status"
)

// errorString wraps string representation of an error that, unlike the original
// error, can be marshalled.
type errorString struct {
	Error string
}

// FlowRecord is the JSON representation of an installed flow rule.
type FlowRecord struct {
	Device    string `json:"device"`
	InPort    uint32 `json:"inPort"`
	SrcMAC    string `json:"srcMAC"`
	DstMAC    string `json:"dstMAC"`
	OutPort   uint32 `json:"outPort"`
	Priority  uint16 `json:"priority"`
	Table     uint8  `json:"table"`
	Permanent bool   `json:"permanent"`
	Timeout   string `json:"timeout,omitempty"`
}

// Status is the JSON representation of the application state.
type Status struct {
	App            string    `json:"app"`
	Started        bool      `json:"started"`
	StartedAt      time.Time `json:"startedAt,omitempty"`
	EdgePolicy     string    `json:"edgePolicy"`
	InstalledFlows int       `json:"installedFlows"`
}

// newFlowRecord converts flow rule into its JSON representation.
func newFlowRecord(rule *model.FlowRule) FlowRecord {
	record := FlowRecord{
		Device:    string(rule.Device),
		InPort:    uint32(rule.Match.InPort),
		SrcMAC:    rule.Match.SrcMAC.String(),
		DstMAC:    rule.Match.DstMAC.String(),
		OutPort:   uint32(rule.OutPort),
		Priority:  rule.Priority,
		Table:     rule.TableID,
		Permanent: rule.Permanent,
	}
	if !rule.Permanent {
		record.Timeout = rule.Timeout.String()
	}
	return record
}

// registerHandlers registers all supported REST APIs.
func (p *Plugin) registerHandlers() {
	if p.HTTPHandlers == nil {
		p.Log.Warn("No http handler provided, skipping registration of reactive forwarding REST handlers")
		return
	}
	p.HTTPHandlers.RegisterHTTPHandler(flowsURL, p.flowsGetHandler, "GET")
	p.HTTPHandlers.RegisterHTTPHandler(eventsURL, p.eventsGetHandler, "GET")
	p.HTTPHandlers.RegisterHTTPHandler(statusURL, p.statusGetHandler, "GET")
}

// flowsGetHandler is the GET handler for "flows" API.
func (p *Plugin) flowsGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		records := []FlowRecord{}
		for _, rule := range p.InstalledRules() {
			records = append(records, newFlowRecord(rule))
		}
		formatter.JSON(w, http.StatusOK, records)
	}
}

// eventsGetHandler is the GET handler for "events" API.
func (p *Plugin) eventsGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		args := req.URL.Query()
		last := -1
		if param, withParam := args[lastArg]; withParam && len(param) == 1 {
			value, err := strconv.Atoi(param[0])
			if err != nil || value < 0 {
				formatter.JSON(w, http.StatusBadRequest, errorString{"invalid value of 'last' argument"})
				return
			}
			last = value
		}
		kind := events.Kind(args.Get(kindArg))

		history := []events.Event{}
		for _, ev := range p.Events() {
			if kind == "" || ev.Kind == kind {
				history = append(history, ev)
			}
		}
		if last >= 0 && last < len(history) {
			history = history[len(history)-last:]
		}
		formatter.JSON(w, http.StatusOK, history)
	}
}

// statusGetHandler is the GET handler for "status" API.
func (p *Plugin) statusGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		formatter.JSON(w, http.StatusOK, p.status())
	}
}

func (p *Plugin) status() Status {
	p.startLock.Lock()
	status := Status{
		App:        p.config.App().String(),
		Started:    p.started,
		EdgePolicy: string(p.config.EdgePolicy),
	}
	if p.started {
		status.StartedAt = p.startedAt
	}
	p.startLock.Unlock()
	status.InstalledFlows = len(p.installer.Installed())
	return status
}
