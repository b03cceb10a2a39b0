// Copyright 2025 gridforge LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands holds the transformd subcommands.
package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/gridforge/transformd/pkg/agent"
	"github.com/gridforge/transformd/pkg/catalog"
	"github.com/gridforge/transformd/pkg/config"
	"github.com/gridforge/transformd/pkg/plugin"
	"github.com/gridforge/transformd/pkg/processor"
	"github.com/gridforge/transformd/pkg/registry"
	"github.com/gridforge/transformd/pkg/replicacache"
)

// missingReporter marks catalog-missing files in the registry on the
// replica cache's behalf.
type missingReporter struct {
	registry registry.Client
}

func (r missingReporter) ReportMissing(ctx context.Context, transID int64, fileIDs []string) error {
	return r.registry.SetFileStatus(ctx, transID, registry.FileStatusMissingInCatalog, fileIDs)
}

// NewRunCmd creates the run command: the agent itself.
func NewRunCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the transformation agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := zerolog.Ctx(ctx)

			cfg, err := config.Load(ctx, *configFile)
			if err != nil {
				return errors.Errorf("loading config: %w", err)
			}

			reg := registry.NewHTTP(cfg.RegistryURL, time.Duration(cfg.RequestTimeout))

			var cat catalog.Client
			if cfg.CheckCatalog {
				cat = catalog.NewHTTP(cfg.CatalogURL, time.Duration(cfg.RequestTimeout))
			}

			cache := replicacache.New(ctx, replicacache.Options{
				Path:         cfg.CacheFile,
				Validity:     time.Duration(cfg.CacheValidity),
				Catalog:      cat,
				Reporter:     missingReporter{registry: reg},
				CheckCatalog: cfg.CheckCatalog,
			})

			proc, err := processor.New(processor.Options{
				Registry: reg,
				Replicas: cache,
				Plugins:  &plugin.Resolver{Location: cfg.PluginLocation},
				MaxFiles: cfg.MaxFiles,
			})
			if err != nil {
				return errors.Errorf("creating processor: %w", err)
			}

			ag, err := agent.New(agent.Options{
				Registry:       reg,
				Processor:      proc,
				Statuses:       cfg.TransformationStatus,
				Types:          cfg.TransformationTypes,
				Transformation: cfg.Transformation,
				Workers:        cfg.Workers,
				QueueSize:      cfg.QueueSize,
				PollInterval:   time.Duration(cfg.PollInterval),
			})
			if err != nil {
				return errors.Errorf("creating agent: %w", err)
			}

			runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var debugSrv *http.Server
			if cfg.MetricsAddr != "" {
				debugSrv = agent.NewDebugServer(cfg.MetricsAddr)
				go func() {
					logger.Info().Str("addr", cfg.MetricsAddr).Msg("debug server listening")
					if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error().Err(err).Msg("debug server failed")
					}
				}()
			}

			err = ag.Run(runCtx)

			if debugSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if serr := debugSrv.Shutdown(shutdownCtx); serr != nil {
					logger.Warn().Err(serr).Msg("debug server shutdown failed")
				}
			}

			if err != nil {
				return errors.Errorf("running agent: %w", err)
			}
			return nil
		},
	}
}
