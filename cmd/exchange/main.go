package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/exchange"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/store"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	statsInterval := flag.Duration("stats-interval", time.Minute, "Metrics log interval (0=disable)")
	profile := flag.Bool("profile", false, "Enable continuous profiling")
	profileAddr := flag.String("profile-addr", "http://localhost:4040", "Profiling server address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *profile {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "attention-exchange",
			ServerAddress:   *profileAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("profiler start failed: %v", err)
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				logs.Errorf("profiler stop failed. err: %+v", err)
			}
		}()
	}

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	opts := []exchange.Option{}
	if loaded.Database != nil {
		client, err := conn.New(conn.Option{ConnString: loaded.Database.DSN})
		if err != nil {
			log.Fatalf("database connect failed: %v", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logs.Errorf("database close failed. err: %+v", err)
			}
		}()

		audit, err := store.NewAudit(client.DB())
		if err != nil {
			log.Fatalf("audit store init failed: %v", err)
		}
		defer audit.Close()
		opts = append(opts, exchange.WithRecorder(audit))
	}

	ex := exchange.New(loaded, opts...)
	ex.Start(ctx)
	defer ex.Stop()

	logs.Infof("exchange started, topics: %d, window interval: %s",
		loaded.Registry.TopicCount(), loaded.Auction.BaseInterval)

	if *statsInterval > 0 {
		go logStats(ctx, *statsInterval)
	}

	<-ctx.Done()
	logs.Info("shutting down")
}

func logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v := obs.Global().Snapshot()
			logs.Infof("orders: %d accepted, %d rejected, %d cancelled | windows: %d settled, %d failed | fills: %d (%d shares) | mentions: %d | squeezes: %d | events dropped: %d",
				v.OrdersAccepted, v.OrdersRejected, v.OrdersCancelled,
				v.WindowsSettled, v.WindowsFailed,
				v.FillsApplied, v.SharesMatched,
				v.MentionsIngested, v.Squeezes, v.EventsDropped)
		}
	}
}
