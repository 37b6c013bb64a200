package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"
)

func (d *Driver) installDebugReport(inst *instance) error {
	return check(vk.CreateDebugReportCallback(inst.vk, &vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: d.debugCallback,
	}, nil, &inst.debug), "vkCreateDebugReportCallbackEXT")
}

func (d *Driver) debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	attrs := []any{
		slog.String("layer", pLayerPrefix),
		slog.Int("code", int(messageCode)),
		slog.Uint64("object", object),
	}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		d.logger.Error(pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		d.logger.Warn(pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		d.logger.Warn(pMessage, append(attrs, slog.Bool("performance", true))...)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		d.logger.Debug(pMessage, attrs...)
	default:
		d.logger.Info(pMessage, attrs...)
	}
	return vk.False
}
