package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/tcpclient"
	"github.com/spf13/cobra"
)

func dialCmd(opts *commonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect to a server and exchange lines",
		Long: `Connect to a konnect server, send every line read from stdin
and print every unit received. Exits when stdin ends, the server
disconnects or on interrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.builder(cmd)
			if err != nil {
				return err
			}

			done := make(chan struct{})
			b.RegisterObserver(
				newPrinter(cmd.OutOrStdout()),
				events.ObserverFuncs{Disconnected: func(events.Peer) { close(done) }},
			)

			cfg, err := b.Build()
			if err != nil {
				return err
			}

			client, err := tcpclient.New(cfg)
			if err != nil {
				return err
			}

			if err := client.Start(); err != nil {
				return err
			}
			defer client.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", client.PeerGreeting())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eof := make(chan error, 1)
			go func() {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					if err := client.Send(scanner.Text()); err != nil {
						eof <- err
						return
					}
				}
				eof <- scanner.Err()
			}()

			select {
			case err := <-eof:
				return err
			case <-done:
				return nil
			case <-ctx.Done():
				return nil
			}
		},
	}

	return cmd
}
