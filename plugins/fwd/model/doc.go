// Package model defines the data model of the reactive forwarding application
// (hosts, devices, links, paths, frames and flow rules) together with the APIs
// of the collaborating subsystems: host tracking, topology, the packet-in bus
// and flow programming.
package model
