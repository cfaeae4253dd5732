package api

import (
	"context"
	"strconv"

	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/core/store/historical"
	"com.qubular.energy-bridge/pkg/features"
	"com.qubular.energy-bridge/pkg/trigger"
	"github.com/apex/log"
	"github.com/gofiber/fiber"
)

type Publisher interface {
	Publish(ctx context.Context, m trigger.Message) error
}

// StatePoller refreshes and projects the features of a heating device.
type StatePoller interface {
	Poll(ctx context.Context, deviceID string) ([]features.ChannelState, error)
}

type ApiServer struct {
	deviceStore     devices.DeviceStore
	timeseriesStore historical.TimeSeriesStore
	publisher       Publisher
	poller          StatePoller
	config          config.APIServerConfig
	app             *fiber.App
	logger          *log.Entry
}

func NewServer(
	deviceStore devices.DeviceStore,
	timeseriesStore historical.TimeSeriesStore,
	publisher Publisher,
	poller StatePoller,
	config config.APIServerConfig,
) *ApiServer {
	as := &ApiServer{
		deviceStore:     deviceStore,
		timeseriesStore: timeseriesStore,
		publisher:       publisher,
		poller:          poller,
		config:          config,
		app:             fiber.New(),
		logger:          log.WithField("module", "api"),
	}

	as.app.Get("/devices", as.listDevices)
	as.app.Get("/devices/:deviceID", as.getDevice)
	as.app.Post("/devices/:deviceID", as.registerDevice)
	as.app.Get("/devices/:deviceID/features", as.getDeviceFeatures)
	as.app.Get("/devices/:deviceID/channels/:channel/history", as.getChannelHistory)
	as.app.Post("/devices/:deviceID/channels/:channel/refresh", as.refreshChannel)
	return as
}

func (as *ApiServer) Start() {
	as.logger.Infof("Starting API on :%d", as.config.Port)
	if err := as.app.Listen(":" + strconv.Itoa(as.config.Port)); err != nil {
		as.logger.Fatalf("Error starting api: %v", err)
	}
}

func (as *ApiServer) Shutdown() error {
	return as.app.Shutdown()
}

func fail(ctx *fiber.Ctx, status int, err error) {
	ctx.Status(status)
	ctx.JSON(fiber.Map{"message": err.Error()})
}
