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
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ligato/cn-infra/infra"
	prometheusplugin "github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contiv/reactivefwd/plugins/fwd/config"
	"github.com/contiv/reactivefwd/plugins/fwd/events"
	"github.com/contiv/reactivefwd/plugins/fwd/installer"
	"github.com/contiv/reactivefwd/plugins/fwd/model"
	"github.com/contiv/reactivefwd/plugins/fwd/pathsel"
	"github.com/contiv/reactivefwd/plugins/fwd/processor"
	"github.com/contiv/reactivefwd/plugins/fwd/resolver"
)

const (
	// path where the event counters are exposed
	prometheusMetricsPath = "/fwd/metrics"

	appLabel = "app"

	// how long Stop waits for the removal of installed flows
	stopTimeout = 5 * time.Second
)

// Plugin implements reactive forwarding: it intercepts IPv4 frames that miss
// in the flow tables and installs flow rules at the edge devices so that
// subsequent frames of the same flow are forwarded without the controller.
type Plugin struct {
	Deps

	config *config.Config

	// layers of the reactive forwarding application
	resolver  *resolver.Resolver
	selector  *pathsel.Selector
	installer *installer.Installer
	processor *processor.Processor

	// observability
	events  events.Sink
	history *events.History
	metrics *events.PrometheusSink

	// interception lifecycle
	startLock sync.Mutex
	started   bool
	startedAt time.Time
}

// Deps defines dependencies of the reactive forwarding plugin.
type Deps struct {
	infra.PluginDeps

	HostService     model.HostService
	TopologyService model.TopologyService
	PacketService   model.PacketService
	FlowRuleService model.FlowRuleService
	DeviceNotifier  model.DeviceNotifier      /* optional */
	FlowRemovals    model.FlowRemovalNotifier /* optional */

	HTTPHandlers rest.HTTPHandlers    /* optional */
	Prometheus   prometheusplugin.API /* optional */
}

// Init loads the configuration and builds the layers of the application.
func (p *Plugin) Init() (err error) {
	if p.config == nil {
		p.config = config.DefaultConfig()
		if p.Cfg != nil {
			if _, err = p.Cfg.LoadValue(p.config); err != nil {
				return err
			}
		}
	}
	if err = p.config.Validate(); err != nil {
		return errors.Wrap(err, "invalid reactive forwarding configuration")
	}
	p.Log.Infof("Reactive forwarding configuration: %+v", *p.config)

	// events are logged, counted and kept in memory for the REST API
	p.history = events.NewHistory(p.config.EventHistorySize)
	p.metrics = events.NewPrometheusSink(prometheus.Labels{appLabel: p.config.AppName})
	p.events = events.Multi(
		&events.LogSink{Log: p.Log.NewLogger("-events")},
		p.history,
		p.metrics,
	)

	p.resolver = &resolver.Resolver{
		Deps: resolver.Deps{
			Log:         p.Log.NewLogger("-resolver"),
			HostService: p.HostService,
			Events:      p.events,
		},
	}
	p.selector = &pathsel.Selector{
		Deps: pathsel.Deps{
			Log:             p.Log.NewLogger("-pathSelector"),
			TopologyService: p.TopologyService,
		},
	}
	p.installer = &installer.Installer{
		Deps: installer.Deps{
			Log:             p.Log.NewLogger("-flowInstaller"),
			Config:          p.config,
			FlowRuleService: p.FlowRuleService,
			Events:          p.events,
		},
	}
	p.processor = &processor.Processor{
		Deps: processor.Deps{
			Log:       p.Log.NewLogger("-fwdProcessor"),
			Config:    p.config,
			Resolver:  p.resolver,
			Selector:  p.selector,
			Installer: p.installer,
			Events:    p.events,
		},
	}
	if err = p.installer.Init(); err != nil {
		return err
	}
	if err = p.processor.Init(); err != nil {
		return err
	}

	if p.Prometheus != nil {
		err = p.Prometheus.NewRegistry(prometheusMetricsPath,
			promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError, ErrorLog: p.Log})
		if err != nil {
			return err
		}
		if err = p.Prometheus.Register(prometheusMetricsPath, p.metrics.Collector()); err != nil {
			p.Log.Errorf("failed to register event counters: %v", err)
			return err
		}
	}
	return nil
}

// AfterInit registers REST handlers and starts the interception.
func (p *Plugin) AfterInit() error {
	p.registerHandlers()
	if p.DeviceNotifier != nil {
		p.DeviceNotifier.WatchDevices(p.deviceChanged)
	}
	if p.FlowRemovals != nil {
		p.FlowRemovals.WatchFlowRemovals(p.flowRemoved)
	}
	return p.Start()
}

// flowRemoved drops the cache entry of an own rule removed by the device,
// the next packet-in of the flow installs it again.
func (p *Plugin) flowRemoved(device model.DeviceID, appID uint16, match model.FlowMatch) {
	if appID != p.config.AppID {
		return
	}
	p.installer.Removed(device, match)
}

// deviceChanged drops cached rules of a (re)connected or disconnected device,
// its flow tables can no longer be trusted to match the cache.
func (p *Plugin) deviceChanged(device model.DeviceID, connected bool) {
	p.Log.Debugf("Device %s connected=%t, forgetting its cached rules", device, connected)
	p.ForgetDevice(device)
}

// Close stops the interception and removes installed flows.
func (p *Plugin) Close() error {
	return p.Stop()
}

// Start registers the packet processor and requests interception of IPv4
// frames. Calling Start on a started application has no effect.
func (p *Plugin) Start() error {
	p.startLock.Lock()
	defer p.startLock.Unlock()

	if p.started {
		p.Log.Debug("Reactive forwarding is already started")
		return nil
	}
	if p.PacketService == nil {
		return errors.New("packet service is not available")
	}

	app := p.config.App()
	priority := p.config.PacketPriority()
	err := p.PacketService.AddProcessor(p.processor, p.config.ProcessorPriority)
	if err != nil {
		return errors.Wrap(err, "failed to register packet processor")
	}
	err = p.PacketService.RequestPackets(model.EtherTypeIPv4, priority, app)
	if err != nil {
		// do not leave the processor registered without the interception
		if rmErr := p.PacketService.RemoveProcessor(p.processor); rmErr != nil {
			p.Log.Warnf("Failed to un-register packet processor: %v", rmErr)
		}
		return errors.Wrap(err, "failed to request IPv4 interception")
	}

	p.started = true
	p.startedAt = time.Now()
	events.Emit(p.events, events.InterceptStarted, events.Attrs{
		events.AttrApp:  app.String(),
		events.AttrType: model.EtherTypeIPv4.String(),
	})
	return nil
}

// Stop withdraws the processor and the interception request and removes
// all flow rules installed by the application. Every step is attempted even
// if some of them fail, the errors are returned aggregated. Calling Stop on
// a stopped application has no effect.
func (p *Plugin) Stop() error {
	p.startLock.Lock()
	defer p.startLock.Unlock()

	if !p.started {
		p.Log.Debug("Reactive forwarding is not started")
		return nil
	}

	var wasErr error
	app := p.config.App()
	if err := p.PacketService.RemoveProcessor(p.processor); err != nil {
		wasErr = multierror.Append(wasErr, errors.Wrap(err, "failed to un-register packet processor"))
	}
	err := p.PacketService.CancelPackets(model.EtherTypeIPv4, p.config.PacketPriority(), app)
	if err != nil {
		wasErr = multierror.Append(wasErr, errors.Wrap(err, "failed to cancel IPv4 interception"))
	}
	if p.FlowRuleService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := p.FlowRuleService.RemoveFlowRulesByAppID(ctx, app); err != nil {
			wasErr = multierror.Append(wasErr, errors.Wrapf(err, "failed to remove flows of %v", app))
		}
		cancel()
	}
	p.installer.Invalidate()

	p.started = false
	attrs := events.Attrs{events.AttrApp: app.String()}
	if wasErr != nil {
		attrs[events.AttrError] = wasErr.Error()
	}
	events.Emit(p.events, events.InterceptStopped, attrs)
	return wasErr
}

// IsStarted returns true if the interception is active.
func (p *Plugin) IsStarted() bool {
	p.startLock.Lock()
	defer p.startLock.Unlock()
	return p.started
}

// InstalledRules returns rules installed by the application, as recorded
// by the installed-rule cache.
func (p *Plugin) InstalledRules() []*model.FlowRule {
	return p.installer.Installed()
}

// Events returns the recorded decision events, oldest first.
func (p *Plugin) Events() []events.Event {
	return p.history.List()
}

// ForgetDevice drops cached rules of a device whose flow tables were reset,
// e.g. after a reconnect.
func (p *Plugin) ForgetDevice(device model.DeviceID) {
	p.installer.Forget(device)
}
