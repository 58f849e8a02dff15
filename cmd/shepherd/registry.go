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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/carverauto/shepherd/pkg/models"
)

func minersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "miners",
		Short: "Edit, delete or bulk-import registered miners",
	}

	cmd.AddCommand(minerEditCmd(), minerDeleteCmd(), minerImportCmd())

	return cmd
}

func minerEditCmd() *cobra.Command {
	var (
		af                                 apiFlags
		minerID, chipset, firmware, locate string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the name, chipset, firmware or location of a miner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMinerID(args[0])
			if err != nil {
				return err
			}

			edit := models.MinerEdit{ID: id}
			flags := cmd.Flags()

			if flags.Changed("miner-id") {
				edit.MinerID = &minerID
			}

			if flags.Changed("chipset") {
				edit.Chipset = &chipset
			}

			if flags.Changed("firmware") {
				edit.FirmwareVersion = &firmware
			}

			if flags.Changed("location") {
				edit.LocationNotes = &locate
			}

			if edit.Empty() {
				return fmt.Errorf("miner %d: nothing to change", id)
			}

			client, err := af.client()
			if err != nil {
				return err
			}

			miner, err := client.EditMiner(cmd.Context(), edit)
			if err != nil {
				return fmt.Errorf("edit miner %d: %w", id, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), successMsg("updated %s", miner.MinerID))
			fmt.Fprint(cmd.OutOrStdout(), keyValues(
				kv("id", fmt.Sprint(miner.ID)),
				kv("chipset", miner.Chipset),
				kv("firmware", miner.FirmwareVersion),
				kv("location", miner.LocationNotes),
			))

			return nil
		},
	}

	af.bind(cmd)
	cmd.Flags().StringVar(&minerID, "miner-id", "", "New miner name")
	cmd.Flags().StringVar(&chipset, "chipset", "", "Chipset (empty clears it)")
	cmd.Flags().StringVar(&firmware, "firmware", "", "Firmware version (empty clears it)")
	cmd.Flags().StringVar(&locate, "location", "", "Location notes (empty clears them)")

	return cmd
}

func minerDeleteCmd() *cobra.Command {
	var af apiFlags

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a miner and its telemetry from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMinerID(args[0])
			if err != nil {
				return err
			}

			client, err := af.client()
			if err != nil {
				return err
			}

			if err := client.DeleteMiner(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete miner %d: %w", id, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), successMsg("deleted miner %d", id))

			return nil
		},
	}

	af.bind(cmd)

	return cmd
}

func minerImportCmd() *cobra.Command {
	var af apiFlags

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Create or update miners from an inventory CSV keyed by miner_id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			client, err := af.client()
			if err != nil {
				return err
			}

			n, err := client.ImportMiners(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), successMsg("imported %d miners", n))

			return nil
		},
	}

	af.bind(cmd)

	return cmd
}

func straysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strays",
		Short: "Manage unregistered devices",
	}

	cmd.AddCommand(strayDismissCmd())

	return cmd
}

func strayDismissCmd() *cobra.Command {
	var (
		af  apiFlags
		key models.DeviceKey
	)

	cmd := &cobra.Command{
		Use:   "dismiss",
		Short: "Forget a stray; it is detected again if still attached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := af.client()
			if err != nil {
				return err
			}

			if err := client.DismissStray(cmd.Context(), key); err != nil {
				return fmt.Errorf("dismiss %s: %w", key, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), successMsg("dismissed stray on port %s", key.PortPath))

			return nil
		},
	}

	af.bind(cmd)
	cmd.Flags().StringVar(&key.PortPath, "port", "", "USB port path of the stray")
	cmd.Flags().StringVar(&key.Serial, "serial", "", "USB serial number of the stray")

	for _, name := range []string{"port", "serial"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func parseMinerID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid miner id %q", s)
	}

	return id, nil
}
