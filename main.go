package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"com.qubular.energy-bridge/pkg/api"
	"com.qubular.energy-bridge/pkg/backfill"
	"com.qubular.energy-bridge/pkg/cache"
	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/core/store/historical"
	"com.qubular.energy-bridge/pkg/features"
	"com.qubular.energy-bridge/pkg/gateway/coap"
	"com.qubular.energy-bridge/pkg/ingestion/realtime"
	"com.qubular.energy-bridge/pkg/ingestion/timeseries"
	"com.qubular.energy-bridge/pkg/metrics"
	"com.qubular.energy-bridge/pkg/provider/heating"
	"com.qubular.energy-bridge/pkg/provider/meter"
	"com.qubular.energy-bridge/pkg/trigger"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	bolt "go.etcd.io/bbolt"
	"gocloud.dev/docstore"
	"gocloud.dev/pubsub"

	_ "gocloud.dev/docstore/memdocstore"
	_ "gocloud.dev/docstore/mongodocstore"
	_ "gocloud.dev/pubsub/mempubsub"
)

func setupLogging(cfg config.LogConfig) {
	switch cfg.Format {
	case "json":
		log.SetHandler(json.New(os.Stderr))
	case "cli":
		log.SetHandler(cli.New(os.Stderr))
	default:
		log.SetHandler(text.New(os.Stderr))
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

type stores struct {
	devices devices.DeviceStore
	history historical.TimeSeriesStore
	close   func()
}

func openStores(ctx context.Context, cfg config.StorageConfig) (*stores, error) {
	if cfg.Type == "docstore" {
		devicesColl, err := docstore.OpenCollection(ctx, cfg.DevicesURL)
		if err != nil {
			return nil, err
		}
		historyColl, err := docstore.OpenCollection(ctx, cfg.HistoryURL)
		if err != nil {
			devicesColl.Close()
			return nil, err
		}
		return &stores{
			devices: devices.NewDeviceDocStore(devicesColl),
			history: historical.NewHistoricalDocStore(historyColl),
			close: func() {
				devicesColl.Close()
				historyColl.Close()
			},
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(cfg.Path, 0600, nil)
	if err != nil {
		return nil, err
	}
	return &stores{
		devices: devices.NewDeviceLocalStore(db),
		history: historical.NewTimeSeriesLocalStore(db),
		close:   func() { db.Close() },
	}, nil
}

func main() {
	configFile := "./config.yaml"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}
	cfg, err := config.LoadConfigFromFile(configFile)
	if err != nil {
		log.Fatalf("Err loading config: %v", err)
	}
	setupLogging(cfg.LogConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg.StorageConfig)
	if err != nil {
		log.Fatalf("could not open storage: %v", err)
	}
	defer st.close()

	for _, d := range cfg.Devices {
		if err := devices.Register(ctx, st.devices, d); err != nil {
			log.Fatalf("could not register device %s: %v", d.ID, err)
		}
	}

	syncTopic, err := pubsub.OpenTopic(ctx, cfg.MessagingConfig.SyncTopicURL)
	if err != nil {
		log.Fatalf("Err creating sync topic: %v", err)
	}
	defer syncTopic.Shutdown(context.Background())
	syncSub, err := pubsub.OpenSubscription(ctx, cfg.MessagingConfig.SyncSubscriptionURL)
	if err != nil {
		log.Fatalf("could not open sync subscription: %v", err)
	}
	defer syncSub.Shutdown(context.Background())

	pollTopic, err := pubsub.OpenTopic(ctx, cfg.MessagingConfig.PollTopicURL)
	if err != nil {
		log.Fatalf("Err creating poll topic: %v", err)
	}
	defer pollTopic.Shutdown(context.Background())
	pollSub, err := pubsub.OpenSubscription(ctx, cfg.MessagingConfig.PollSubscriptionURL)
	if err != nil {
		log.Fatalf("could not open poll subscription: %v", err)
	}
	defer pollSub.Shutdown(context.Background())

	if err := metrics.Register(backfill.Views, cache.Views, coap.Views); err != nil {
		log.Fatalf("%v", err)
	}
	if err := metrics.StartMetricsExporter(cfg.MetricsConfig); err != nil {
		log.Fatalf("%v", err)
	}

	syncPublisher := trigger.NewPublisher(syncTopic)
	triggers := trigger.Router{
		trigger.KindSync: syncPublisher,
		trigger.KindPoll: trigger.NewPublisher(pollTopic),
	}

	synchronizer := backfill.NewSynchronizer(meter.NewClient(cfg.MeterConfig), st.history)
	responses := cache.NewResponseCache[[]features.Feature]("heating-features", cache.TTLForPollInterval(cfg.PollingConfig.Interval))

	timeseriesIngestor := timeseries.NewIngestor(syncSub, st.devices, synchronizer, cfg.SyncConfig)
	realtimeIngestor := realtime.NewIngestor(pollSub, st.devices, heating.NewClient(cfg.HeatingConfig), responses)
	scheduler := realtime.NewScheduler(triggers, st.devices, cfg.PollingConfig, cfg.SyncConfig.OnPoll)
	apiServer := api.NewServer(st.devices, st.history, syncPublisher, realtimeIngestor, cfg.APIServerConfig)

	for _, g := range cfg.GatewayConfigs {
		go coap.NewGateway(triggers, g).Start()
	}
	go timeseriesIngestor.Start(ctx)
	go realtimeIngestor.Start(ctx)
	go scheduler.Start(ctx)
	go apiServer.Start()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	log.Info("Server Started")
	<-done
	cancel()
	if err := apiServer.Shutdown(); err != nil {
		log.Warnf("api shutdown: %v", err)
	}
	log.Info("Server Stopped")
}
