/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carverauto/shepherd/pkg/api"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/reset"
)

// apiFlags are shared by every command that talks to a running daemon.
type apiFlags struct {
	addr string
	key  string
}

func (f *apiFlags) bind(cmd *cobra.Command) {
	addr := os.Getenv("SHEPHERD_API")
	if addr == "" {
		addr = api.DefaultListenAddr
	}

	cmd.Flags().StringVar(&f.addr, "api", addr, "Admin API address")
	cmd.Flags().StringVar(&f.key, "api-key", os.Getenv("SHEPHERD_API_KEY"), "Admin API key")
}

func (f *apiFlags) client() (*api.Client, error) {
	return api.NewClient(f.addr, f.key)
}

func onboardCmd() *cobra.Command {
	var (
		af  apiFlags
		req models.OnboardRequest
	)

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Promote a stray device to a named miner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := af.client()
			if err != nil {
				return err
			}

			miner, err := client.Onboard(cmd.Context(), &req)
			if err != nil {
				return fmt.Errorf("onboard %s: %w", req.MinerID, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), successMsg("onboarded %s on port %s", miner.MinerID, miner.PortPath))
			fmt.Fprint(cmd.OutOrStdout(), keyValues(
				kv("id", fmt.Sprint(miner.ID)),
				kv("status", string(miner.Status)),
				kv("state", miner.State),
				kv("mac", miner.MACAddress),
				kv("pool", miner.PoolURL),
			))

			return nil
		},
	}

	af.bind(cmd)
	cmd.Flags().StringVar(&req.PortPath, "port", "", "USB port path of the stray (e.g. 1-1.2)")
	cmd.Flags().StringVar(&req.Serial, "serial", "", "USB serial number of the stray")
	cmd.Flags().StringVar(&req.MinerID, "miner-id", "", "Name for the new miner")
	cmd.Flags().StringVar(&req.LocationNotes, "location", "", "Free-form location notes")

	for _, name := range []string{"port", "serial", "miner-id"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func resetCmd() *cobra.Command {
	var (
		af      apiFlags
		req     reset.Request
		minerDB int64
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Hard-reset a device and capture its identity and boot config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := af.client()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("miner-db-id") {
				req.MinerDBID = &minerDB
			}

			res, err := client.Reset(cmd.Context(), req)
			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), renderResult(res))
			}

			if err != nil {
				return fmt.Errorf("reset %s: %w", req.PortPath, err)
			}

			return nil
		},
	}

	af.bind(cmd)
	cmd.Flags().StringVar(&req.PortPath, "port", "", "USB port path of the device")
	cmd.Flags().StringVar(&req.Serial, "serial", "", "USB serial number of the device")
	cmd.Flags().Int64Var(&minerDB, "miner-db-id", 0, "Registry id of a known miner (omit for strays)")

	for _, name := range []string{"port", "serial"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func renderResult(res *reset.Result) string {
	head := successMsg("%s", res.Message)
	if !res.Success {
		head = warnMsg("%s", res.Message)
	}

	pairs := []kvPair{
		kv("reset id", res.ResetID),
		kv("mac", res.MACAddress),
		kv("chipset", res.Chipset),
		kv("config", boolText(res.ConfigFound)),
	}

	if res.Config != nil {
		pairs = append(pairs,
			kv("pool", res.Config.PoolURL),
			kv("wallet", res.Config.WalletAddress),
			kv("firmware", res.Config.FirmwareVersion),
		)
	}

	return head + "\n" + keyValues(pairs...)
}
