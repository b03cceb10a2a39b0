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

// transformd turns standing transformations from the registry into
// concrete, assignable tasks.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gridforge/transformd/cmd/transformd/commands"
)

var (
	configFile string
	debug      bool
	jsonLogs   bool
)

func main() {
	// A .env next to the binary is a developer convenience; absence is not
	// an error.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "transformd",
		Short: "Agent that turns standing transformations into assignable tasks",
		Long: `transformd polls the transformation registry for active transformations,
resolves the replica locations of their unprocessed files through a
persisted cache, and submits the tasks a pluggable strategy generates.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Flags are parsed by now; wire the logger into the command
			// context here rather than before Execute.
			cmd.SetContext(setupLogging().WithContext(cmd.Context()))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (.yaml, .json or .hcl)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log JSON instead of console output")

	rootCmd.AddCommand(
		commands.NewRunCmd(&configFile),
		commands.NewCacheCmd(&configFile),
		commands.NewVersionCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger := setupLogging()
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging() zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if jsonLogs {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()
}
