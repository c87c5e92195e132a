// mockotg runs a standalone mock traffic generator target for local
// development of the OTG MCP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bc-dunia/otgmcp/internal/mockotg"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8443", "Listen address")
	sdkVersion := flag.String("sdk-version", "1.30.0", "SDK version reported by /capabilities/version")
	lineRate := flag.Float64("line-rate", 1000, "Synthetic per-flow transmit rate in frames/s")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	srv := mockotg.New(&mockotg.Config{
		Addr:       *addr,
		SDKVersion: *sdkVersion,
		LineRate:   *lineRate,
	})
	if err := srv.Start(); err != nil {
		logger.Fatal("starting mock target", zap.Error(err))
	}
	fmt.Printf("Mock OTG target listening on %s (sdk_version %s)\n", srv.Addr(), *sdkVersion)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(ctx)
	fmt.Println("Mock target stopped")
}
