// Copyright 2025 The Debler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/debler/debler/internal/webhookd"
	"github.com/spf13/cobra"
)

var serveOpts struct {
	Host string
	Port int
}

var serveCmd = &cobra.Command{
	Use:   "serve --port PORT [--host HOST]",
	Short: "Run the update-trigger webhook service",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		s := &webhookd.Server{Catalog: e.Catalog, Config: e.Config}
		srv := &http.Server{
			Addr:        fmt.Sprintf("%s:%d", serveOpts.Host, serveOpts.Port),
			Handler:     s.Handler(),
			ReadTimeout: 30 * time.Second,
		}
		log.Printf("listening on %s", srv.Addr)
		return srv.ListenAndServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.Host, "host", "0.0.0.0",
		"host to bind the listen socket to")
	serveCmd.Flags().IntVar(&serveOpts.Port, "port", 8080,
		"port to listen on")
}
