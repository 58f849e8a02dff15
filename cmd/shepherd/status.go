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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/snapshot"
)

func defaultSnapshotPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, "shepherd_data", "device_state.json")
}

func statusCmd() *cobra.Command {
	var (
		af      apiFlags
		path    string
		fromAPI bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest device snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				snap *models.Snapshot
				err  error
			)

			if fromAPI {
				client, cerr := af.client()
				if cerr != nil {
					return cerr
				}

				snap, err = client.Devices(cmd.Context())
			} else {
				snap, err = snapshot.ReadFile(path)
			}

			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}

			if asJSON {
				body, err := snapshot.Encode(snap)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))

				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), renderSnapshot(snap))

			return err
		},
	}

	af.bind(cmd)
	cmd.Flags().StringVar(&path, "snapshot", defaultSnapshotPath(), "Path of the snapshot file written by the daemon")
	cmd.Flags().BoolVar(&fromAPI, "from-api", false, "Fetch the snapshot from the admin API instead of the file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw snapshot document")

	return cmd
}
