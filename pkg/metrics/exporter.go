package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"com.qubular.energy-bridge/pkg/config"
	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/apex/log"
	"go.opencensus.io/stats/view"
)

// Register registers every view group with opencensus.
func Register(groups ...[]*view.View) error {
	for _, views := range groups {
		if err := view.Register(views...); err != nil {
			return fmt.Errorf("failed to register views: %w", err)
		}
	}
	return nil
}

// NewHandler creates the Prometheus scrape handler for registered views.
func NewHandler(cfg config.MetricsConfig) (http.Handler, error) {
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create the Prometheus stats exporter: %w", err)
	}
	return pe, nil
}

func StartMetricsExporter(cfg config.MetricsConfig) error {
	logger := log.WithField("module", "metrics")
	pe, err := NewHandler(cfg)
	if err != nil {
		return err
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", pe)
		if err := http.ListenAndServe(":"+strconv.Itoa(cfg.Port), mux); err != nil {
			logger.Fatalf("Failed to run Prometheus scrape endpoint: %v", err)
		}
	}()
	logger.Infof("Serving metrics on :%d/metrics", cfg.Port)
	return nil
}
