package api

import (
	"errors"

	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/ingestion/realtime"
	"com.qubular.energy-bridge/pkg/provider"
	"github.com/gofiber/fiber"
)

type registerDeviceRequest struct {
	Kind           string                 `json:"kind"`
	InstallationID string                 `json:"installationId"`
	GatewaySerial  string                 `json:"gatewaySerial"`
	DeviceID       string                 `json:"deviceId"`
	Channels       []config.ChannelConfig `json:"channels"`
}

func (as *ApiServer) listDevices(ctx *fiber.Ctx) {
	list, err := as.deviceStore.ListDevices(ctx.Context())
	if err != nil {
		fail(ctx, fiber.StatusInternalServerError, err)
		return
	}

	if list == nil {
		list = make([]*devices.Device, 0)
	}

	ctx.JSON(list)
}

func (as *ApiServer) getDevice(ctx *fiber.Ctx) {
	device, err := as.deviceStore.GetDeviceByID(ctx.Context(), ctx.Params("deviceID"))
	if err != nil {
		fail(ctx, fiber.StatusInternalServerError, err)
		return
	}

	if device == nil {
		fail(ctx, fiber.StatusNotFound, errors.New("not found"))
		return
	}

	ctx.JSON(device)
}

func (as *ApiServer) registerDevice(ctx *fiber.Ctx) {
	req := &registerDeviceRequest{}
	if err := ctx.BodyParser(req); err != nil {
		fail(ctx, fiber.StatusBadRequest, errors.New("invalid device body"))
		return
	}

	cfg := config.DeviceConfig{
		ID:             ctx.Params("deviceID"),
		Kind:           req.Kind,
		InstallationID: req.InstallationID,
		GatewaySerial:  req.GatewaySerial,
		DeviceID:       req.DeviceID,
		Channels:       req.Channels,
	}
	if err := cfg.Validate(); err != nil {
		fail(ctx, fiber.StatusBadRequest, err)
		return
	}

	if err := devices.Register(ctx.Context(), as.deviceStore, cfg); err != nil {
		fail(ctx, fiber.StatusInternalServerError, err)
		return
	}

	as.getDevice(ctx)
}

func (as *ApiServer) getDeviceFeatures(ctx *fiber.Ctx) {
	states, err := as.poller.Poll(ctx.Context(), ctx.Params("deviceID"))
	switch {
	case err == nil:
		ctx.JSON(states)
	case errors.Is(err, realtime.ErrUnknownDevice):
		fail(ctx, fiber.StatusNotFound, err)
	case errors.Is(err, realtime.ErrNotHeating):
		fail(ctx, fiber.StatusBadRequest, err)
	case provider.IsAuthentication(err), provider.IsCommunication(err):
		fail(ctx, fiber.StatusBadGateway, err)
	default:
		fail(ctx, fiber.StatusInternalServerError, err)
	}
}
