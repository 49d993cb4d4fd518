/*
Copyright 2025 Sello Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sellolabs/sello"
	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/database"
	"github.com/sellolabs/sello/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Sello represents the CLI application, encapsulating the root Cobra command.
type Sello struct {
	cmd *cobra.Command
}

// selloInstance holds the Sello instance and its configuration, shared by
// every subcommand.
type selloInstance struct {
	sello *sello.Sello
	cnf   *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the Sello instance before
// running any command.
func preRun(app *selloInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("sello.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newSello, err := setupSello(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.sello = newSello
		app.cnf = cnf

		return nil
	}
}

// setupSello creates and initializes a new Sello instance based on the
// provided configuration.
func setupSello(cfg *config.Configuration) (*sello.Sello, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newSello, err := sello.NewSello(db)
	if err != nil {
		return nil, fmt.Errorf("error creating sello: %v", err)
	}
	return newSello, nil
}

// NewCLI creates the command-line interface for the Sello anchoring service.
func NewCLI() *Sello {
	var configFile string
	b := &selloInstance{}

	var rootCmd = &cobra.Command{
		Use:   "sello",
		Short: "Blockchain certificate anchoring service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./sello.json", "Configuration file for the anchoring service")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(recoveryCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Sello{cmd: rootCmd}
}

func (w Sello) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
