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
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sellolabs/sello"
	"github.com/sellolabs/sello/config"
	"github.com/spf13/cobra"
)

// recoveryCommands defines the "recovery" command, which runs the anchor
// recovery processor as a standalone daemon. Useful when the API replicas
// should not carry the verification sweep themselves.
func recoveryCommands(b *selloInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "start the anchor recovery daemon",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			phClient, shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}
			if phClient != nil {
				defer phClient.Close()
			}

			// The recovery sweep enqueues nothing; it verifies directly
			// against the chain, so no queue engine is started here.
			processor := sello.NewAnchorRecoveryProcessor(b.sello)
			processor.Start(ctx)
			defer processor.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			log.Println("shutting down recovery daemon")
		},
	}

	return cmd
}
