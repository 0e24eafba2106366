/*
 * Copyright 2025 tomoncle.
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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tomoncle/pgboot"
	"github.com/tomoncle/pgboot/config"
	"github.com/tomoncle/pgboot/database"
	"github.com/tomoncle/pgboot/utils"
)

var version = "dev"

var (
	cfgPath string
	verbose bool
	quiet   bool

	cfg *config.Config
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "pgboot",
		Version: version,
		Short:   "Bootstrap a local PostgreSQL installation",
		Long: "pgboot reinstalls the PostgreSQL package, starts the server against a\n" +
			"fixed data directory, waits until it accepts connections, creates a\n" +
			"superuser role, applies the bundled setup script, installs the bundled\n" +
			"pg_hba.conf, and signals the postmaster to reload.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load() // ignore error if .env file is not present

			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg.ApplyLogging()

			if verbose {
				utils.SetAllLoggersLevel(logrus.DebugLevel)
			}
			if quiet {
				utils.SetAllLoggersLevel(logrus.ErrorLevel)
				database.SilenceQueryLogs(true)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the configuration file (default: ./"+config.DefaultFileName+" if present)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")

	root.AddCommand(newUpCmd(), newStatusCmd(), newReloadCmd())
	return root
}

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run the full bootstrap procedure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pgboot.NewRunner(cfg).Up(cmd.Context())
		},
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reinstall pg_hba.conf and signal the postmaster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pgboot.NewRunner(cfg).Reload(cmd.Context())
		},
	}
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report server version, settings, and superuser state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := pgboot.NewRunner(cfg).Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				out, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			printStatus(st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func printStatus(st *pgboot.Status) {
	fmt.Printf("version:          %s\n", st.Server.Version)
	fmt.Printf("data directory:   %s\n", st.Server.DataDirectory)
	fmt.Printf("hba file:         %s\n", st.Server.HBAFile)
	fmt.Printf("port:             %s\n", st.Server.Port)
	if st.Server.UnixSocketDirectories != "" {
		fmt.Printf("socket dirs:      %s\n", st.Server.UnixSocketDirectories)
	}
	fmt.Printf("postmaster pid:   %d\n", st.PostmasterPID)
	fmt.Printf("running:          %t\n", st.Running)
	fmt.Printf("superuser:        %s (exists: %t)\n", st.Superuser, st.RoleExists)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, color.RedString("pgboot: %v", err))
		os.Exit(1)
	}
}
