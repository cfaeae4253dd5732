package api

import (
	"errors"
	"strconv"
	"time"

	"com.qubular.energy-bridge/pkg/core/store/devices"
	"com.qubular.energy-bridge/pkg/core/store/historical"
	"com.qubular.energy-bridge/pkg/trigger"
	"github.com/gofiber/fiber"
)

const defaultHistoryDays = 7

// channel resolves the binding named in the route or writes the error.
func (as *ApiServer) channel(ctx *fiber.Ctx) (*devices.Device, devices.ChannelBinding, bool) {
	device, err := as.deviceStore.GetDeviceByID(ctx.Context(), ctx.Params("deviceID"))
	if err != nil {
		fail(ctx, fiber.StatusInternalServerError, err)
		return nil, devices.ChannelBinding{}, false
	}
	if device == nil {
		fail(ctx, fiber.StatusNotFound, errors.New("device not found"))
		return nil, devices.ChannelBinding{}, false
	}
	binding, ok := device.Channel(ctx.Params("channel"))
	if !ok {
		fail(ctx, fiber.StatusNotFound, errors.New("channel not found"))
		return nil, devices.ChannelBinding{}, false
	}
	return device, binding, true
}

func parseDays(ctx *fiber.Ctx, fallback int) (int, error) {
	raw := ctx.Query("days")
	if raw == "" {
		return fallback, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return 0, errors.New("days must be a non-negative integer")
	}
	return days, nil
}

func (as *ApiServer) getChannelHistory(ctx *fiber.Ctx) {
	device, binding, ok := as.channel(ctx)
	if !ok {
		return
	}
	days, err := parseDays(ctx, defaultHistoryDays)
	if err != nil {
		fail(ctx, fiber.StatusBadRequest, err)
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	samples, err := as.timeseriesStore.QuerySamples(ctx.Context(), binding.SeriesKey(device.ID), start, end)
	if err != nil {
		fail(ctx, fiber.StatusInternalServerError, err)
		return
	}
	if samples == nil {
		samples = make([]historical.Sample, 0)
	}

	ctx.JSON(samples)
}

// refreshChannel enqueues a sync of the channel, narrowed to the last
// ?days=N when given.
func (as *ApiServer) refreshChannel(ctx *fiber.Ctx) {
	device, binding, ok := as.channel(ctx)
	if !ok {
		return
	}
	days, err := parseDays(ctx, 0)
	if err != nil {
		fail(ctx, fiber.StatusBadRequest, err)
		return
	}

	var start, end time.Time
	if days > 0 {
		end = time.Now().Truncate(time.Minute)
		start = end.AddDate(0, 0, -days)
	}
	m := trigger.NewSync(device.ID, binding.Name, start, end)
	if err := as.publisher.Publish(ctx.Context(), m); err != nil {
		fail(ctx, fiber.StatusServiceUnavailable, err)
		return
	}

	ctx.Status(fiber.StatusAccepted)
	ctx.JSON(fiber.Map{"id": m.ID})
}
