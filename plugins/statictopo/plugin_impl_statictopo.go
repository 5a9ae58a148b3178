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
	"sync"

	"github.com/ligato/cn-infra/infra"
	"github.com/pkg/errors"

	"github.com/contiv/reactivefwd/plugins/fwd/model"
)

const defaultMaxPaths = 16

// Config holds the configuration of the static topology plugin.
type Config struct {
	// YAML file with the network snapshot; empty for an initially empty network
	SnapshotFile string `json:"snapshotFile"`

	// maximum number of equal-cost paths returned by GetPaths (0 = unlimited)
	MaxPaths int `json:"maxPaths"`
}

// Plugin serves hosts and topology from an operator-provided snapshot.
// It implements model.HostService and model.TopologyService.
type Plugin struct {
	Deps

	config *Config

	sync.RWMutex
	snapshot *Snapshot
}

// Deps defines dependencies of the static topology plugin.
type Deps struct {
	infra.PluginDeps
}

// Init loads the configuration and the snapshot.
func (p *Plugin) Init() (err error) {
	if p.config == nil {
		p.config = &Config{MaxPaths: defaultMaxPaths}
		if p.Cfg != nil {
			if _, err = p.Cfg.LoadValue(p.config); err != nil {
				return err
			}
		}
	}
	if p.config.MaxPaths < 0 {
		return errors.Errorf("invalid maxPaths %d", p.config.MaxPaths)
	}

	file := &SnapshotFile{}
	if p.config.SnapshotFile != "" {
		if file, err = LoadSnapshotFile(p.config.SnapshotFile); err != nil {
			return err
		}
	}
	return p.Update(file)
}

// Close does nothing.
func (p *Plugin) Close() error {
	return nil
}

// Update replaces the served snapshot. The topology version is increased.
func (p *Plugin) Update(file *SnapshotFile) error {
	p.Lock()
	defer p.Unlock()

	var version uint64 = 1
	if p.snapshot != nil {
		version = p.snapshot.version + 1
	}
	snapshot, err := NewSnapshot(file, version)
	if err != nil {
		return err
	}
	p.snapshot = snapshot
	p.Log.Infof("Topology snapshot v%d: %d devices, %d links, %d hosts",
		version, len(snapshot.devices), snapshot.LinkCount(), snapshot.HostCount())
	return nil
}

// GetHost returns the host with the given MAC address.
func (p *Plugin) GetHost(mac model.MAC) (*model.Host, bool) {
	snapshot := p.current()
	if snapshot == nil {
		return nil, false
	}
	return snapshot.host(mac)
}

// CurrentTopology returns the latest snapshot.
func (p *Plugin) CurrentTopology() model.Topology {
	snapshot := p.current()
	if snapshot == nil {
		return nil
	}
	return snapshot
}

// GetPaths returns the shortest paths between two devices in the given snapshot.
// Topology not produced by this plugin is replaced with the latest snapshot.
func (p *Plugin) GetPaths(topo model.Topology, src, dst model.DeviceID) []*model.Path {
	snapshot, ours := topo.(*Snapshot)
	if !ours || snapshot == nil {
		snapshot = p.current()
		if snapshot == nil {
			return nil
		}
	}
	return snapshot.shortestPaths(src, dst, p.maxPaths())
}

func (p *Plugin) current() *Snapshot {
	p.RLock()
	defer p.RUnlock()
	return p.snapshot
}

func (p *Plugin) maxPaths() int {
	if p.config == nil {
		return defaultMaxPaths
	}
	return p.config.MaxPaths
}
