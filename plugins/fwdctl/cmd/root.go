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

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/contiv/reactivefwd/plugins/fwdctl/cmdimpl"
)

const defaultServer = "127.0.0.1:9191"

var (
	server     string
	eventKind  string
	eventsLast int
	verbose    bool
)

var cmdFlows = &cobra.Command{
	Use:   "flows [device]",
	Short: "Shows flow rules installed by reactive forwarding",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device := ""
		if len(args) == 1 {
			device = args[0]
		}
		return cmdimpl.PrintFlows(os.Stdout, server, device)
	},
}

var cmdEvents = &cobra.Command{
	Use:   "events",
	Short: "Shows recent forwarding decision events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.PrintEvents(os.Stdout, server, eventKind, eventsLast)
	},
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Shows the state of the reactive forwarding application",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.PrintStatus(os.Stdout, server)
	},
}

// NewRootCmd builds the fwdctl command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "fwdctl",
		Short:        "Inspects the reactive forwarding agent",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&server, "server", "s", defaultServer,
		"address of the agent REST API")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log REST requests")
	cmdEvents.Flags().StringVarP(&eventKind, "kind", "k", "", "show only events of the given kind")
	cmdEvents.Flags().IntVarP(&eventsLast, "last", "n", 0, "show only the given number of latest events")

	rootCmd.AddCommand(cmdFlows)
	rootCmd.AddCommand(cmdEvents)
	rootCmd.AddCommand(cmdStatus)
	return rootCmd
}

// Execute will execute the fwdctl command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
