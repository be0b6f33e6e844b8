package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/thingpad/internal/server"
)

var (
	flagAddr    string
	flagServeNS string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a namespace as a live page",
	Long:  "Serves the namespace's things at / with a websocket at /ws that evaluates widgets as they are edited.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default: server.addr from config)")
	serveCmd.Flags().StringVar(&flagServeNS, "namespace", "", "thing namespace (default: server.namespace from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr := cfg.Server.Addr
	if flagAddr != "" {
		addr = flagAddr
	}
	ns := cfg.Server.Namespace
	if flagServeNS != "" {
		ns = flagServeNS
	}

	e, err := openEngine("engine")
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(e, server.Options{Namespace: ns, Logger: logs.Named("server")})
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving %q on http://%s\n", ns, addr)
	return srv.ListenAndServe(ctx, addr)
}
