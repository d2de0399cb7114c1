package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/inference-sim/mixnet-sim/sim/report"
	"github.com/inference-sim/mixnet-sim/sim/stats"
)

var serveAddr string // Listen address

// serveCmd exposes an archive over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve archived results over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := stats.OpenStore(storePath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		srv, err := report.NewServer(store)
		if err != nil {
			return err
		}
		l, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return err
		}
		return srv.Serve(l)
	},
}

func init() {
	serveCmd.Flags().StringVar(&storePath, "store", "", "bbolt database written by run or replicate")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	_ = serveCmd.MarkFlagRequired("store")

	rootCmd.AddCommand(serveCmd)
}
