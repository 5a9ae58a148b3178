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

package statictopo

import (
	"io/ioutil"
	"sort"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

// SnapshotFile is the YAML representation of the network.
//
// Example:
//
//	devices: [of:0000000000000001, of:0000000000000002]
//	links:
//	  - src: of:0000000000000001/2
//	    dst: of:0000000000000002/7
//	    bidirectional: true
//	hosts:
//	  - mac: 00:00:00:00:00:aa
//	    location: of:0000000000000001/1
type SnapshotFile struct {
	Devices []string    `json:"devices"`
	Links   []LinkEntry `json:"links"`
	Hosts   []HostEntry `json:"hosts"`
}

// LinkEntry describes a link between two connect points.
type LinkEntry struct {
	Src           string `json:"src"`
	Dst           string `json:"dst"`
	Bidirectional bool   `json:"bidirectional"`
}

// HostEntry describes a host attached to the network.
type HostEntry struct {
	MAC      string `json:"mac"`
	Location string `json:"location"`
}

// Snapshot is an immutable view of the network. It implements model.Topology.
type Snapshot struct {
	version uint64
	devices map[model.DeviceID]struct{}
	links   map[model.DeviceID][]model.Link // source device -> outgoing links, sorted
	hosts   map[string]*model.Host          // MAC -> host
}

// Version returns the version of the snapshot.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Devices returns all devices of the snapshot, sorted.
func (s *Snapshot) Devices() (devices []model.DeviceID) {
	for device := range s.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })
	return devices
}

// LinkCount returns the number of directed links.
func (s *Snapshot) LinkCount() (count int) {
	for _, links := range s.links {
		count += len(links)
	}
	return count
}

// HostCount returns the number of hosts.
func (s *Snapshot) HostCount() int {
	return len(s.hosts)
}

// LoadSnapshotFile reads and parses YAML snapshot file.
func LoadSnapshotFile(path string) (*SnapshotFile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read topology snapshot %s", path)
	}
	return ParseSnapshotFile(data)
}

// ParseSnapshotFile parses YAML snapshot.
func ParseSnapshotFile(data []byte) (*SnapshotFile, error) {
	file := &SnapshotFile{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, errors.Wrap(err, "failed to parse topology snapshot")
	}
	return file, nil
}

// NewSnapshot validates the snapshot file and builds its immutable view.
// Devices referenced by links and hosts are added implicitly.
func NewSnapshot(file *SnapshotFile, version uint64) (*Snapshot, error) {
	s := &Snapshot{
		version: version,
		devices: make(map[model.DeviceID]struct{}),
		links:   make(map[model.DeviceID][]model.Link),
		hosts:   make(map[string]*model.Host),
	}
	for _, device := range file.Devices {
		if device == "" {
			return nil, errors.New("empty device identifier")
		}
		s.devices[model.DeviceID(device)] = struct{}{}
	}

	seen := make(map[model.Link]struct{})
	addLink := func(link model.Link) {
		if _, duplicate := seen[link]; duplicate {
			return
		}
		seen[link] = struct{}{}
		s.links[link.Src.Device] = append(s.links[link.Src.Device], link)
		s.devices[link.Src.Device] = struct{}{}
		s.devices[link.Dst.Device] = struct{}{}
	}
	for _, entry := range file.Links {
		src, err := model.ParseConnectPoint(entry.Src)
		if err != nil {
			return nil, errors.Wrap(err, "invalid link source")
		}
		dst, err := model.ParseConnectPoint(entry.Dst)
		if err != nil {
			return nil, errors.Wrap(err, "invalid link destination")
		}
		if src.Device == dst.Device {
			return nil, errors.Errorf("link %s -> %s is a loop", src, dst)
		}
		addLink(model.Link{Src: src, Dst: dst})
		if entry.Bidirectional {
			addLink(model.Link{Src: dst, Dst: src})
		}
	}
	for device := range s.links {
		links := s.links[device]
		sort.Slice(links, func(i, j int) bool { return linkLess(links[i], links[j]) })
	}

	for _, entry := range file.Hosts {
		mac, err := model.ParseMAC(entry.MAC)
		if err != nil {
			return nil, err
		}
		location, err := model.ParseConnectPoint(entry.Location)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid location of host %s", mac)
		}
		if _, duplicate := s.hosts[mac.String()]; duplicate {
			return nil, errors.Errorf("duplicate host %s", mac)
		}
		s.hosts[mac.String()] = &model.Host{MAC: mac, Location: location}
		s.devices[location.Device] = struct{}{}
	}
	return s, nil
}

// host returns copy of the host with the given MAC.
func (s *Snapshot) host(mac model.MAC) (*model.Host, bool) {
	host, found := s.hosts[mac.String()]
	if !found {
		return nil, false
	}
	hostCopy := *host
	return &hostCopy, true
}

// shortestPaths returns up to <limit> shortest paths between two distinct devices.
// Paths are enumerated in the order of the sorted adjacency lists.
func (s *Snapshot) shortestPaths(src, dst model.DeviceID, limit int) []*model.Path {
	if src == dst {
		return nil
	}
	if _, known := s.devices[src]; !known {
		return nil
	}

	// BFS distances from the source
	dist := map[model.DeviceID]int{src: 0}
	queue := []model.DeviceID{src}
	for len(queue) > 0 {
		device := queue[0]
		queue = queue[1:]
		if device == dst {
			break
		}
		for _, link := range s.links[device] {
			if _, visited := dist[link.Dst.Device]; !visited {
				dist[link.Dst.Device] = dist[device] + 1
				queue = append(queue, link.Dst.Device)
			}
		}
	}
	if _, reachable := dist[dst]; !reachable {
		return nil
	}

	// DFS along links that advance by exactly one hop
	var (
		paths   []*model.Path
		current []model.Link
		walk    func(device model.DeviceID)
	)
	walk = func(device model.DeviceID) {
		if limit > 0 && len(paths) >= limit {
			return
		}
		if device == dst {
			paths = append(paths, &model.Path{Links: append([]model.Link{}, current...)})
			return
		}
		for _, link := range s.links[device] {
			next := link.Dst.Device
			if d, visited := dist[next]; !visited || d != dist[device]+1 || d > dist[dst] {
				continue
			}
			current = append(current, link)
			walk(next)
			current = current[:len(current)-1]
		}
	}
	walk(src)
	return paths
}

func linkLess(a, b model.Link) bool {
	if a.Dst.Device != b.Dst.Device {
		return a.Dst.Device < b.Dst.Device
	}
	if a.Src.Port != b.Src.Port {
		return a.Src.Port < b.Src.Port
	}
	return a.Dst.Port < b.Dst.Port
}
