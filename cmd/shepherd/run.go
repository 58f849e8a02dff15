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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/carverauto/shepherd/pkg/config"
	"github.com/carverauto/shepherd/pkg/lifecycle"
	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/shepherd"
)

func runCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller daemon",
		Long: "Run the reconciliation loop, telemetry monitors and admin API.\n" +
			"Without --config, defaults apply and SHEPHERD_* environment variables override them.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDaemon(ctx, configPath, debug)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("SHEPHERD_CONFIG"), "Path to a JSON or YAML config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

func runDaemon(ctx context.Context, configPath string, debug bool) error {
	bootLog, err := lifecycle.CreateComponentLogger("shepherd-main", nil)
	if err != nil {
		return err
	}

	var cfg shepherd.Config
	if err := config.NewConfig(bootLog).LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Components log through children of the process-wide logger, so
	// libraries writing to zerolog's global follow the same settings.
	if err := lifecycle.InitializeLogger(cfg.Logging); err != nil {
		return err
	}

	if debug {
		logger.SetDebug(true)
	}

	srv, err := shepherd.NewServer(ctx, &cfg, logger.New(logger.WithComponent("shepherd")))
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
