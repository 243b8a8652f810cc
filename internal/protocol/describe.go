package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/muurk/groundlink/internal/logging"
)

// MessageName returns the MAVLink name of a decoded payload,
// e.g. *common.MessageGpsRawInt -> GpsRawInt.
func MessageName(payload message.Message) string {
	if payload == nil {
		return "nil"
	}
	if raw, ok := payload.(*message.MessageRaw); ok {
		return fmt.Sprintf("Unknown(%d)", raw.ID)
	}

	name := fmt.Sprintf("%T", payload)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimPrefix(name, "Message")
}

// LogMessage writes a debug line for a decoded message. Common telemetry
// types get their interesting fields pulled out; everything else is logged
// with a hex dump of the frame.
func LogMessage(link LinkHandle, msg *Message) {
	if !logging.GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}

	fields := []zap.Field{
		zap.String("link", link.Name()),
		zap.Uint8("sysid", msg.SystemID),
		zap.Uint8("compid", msg.ComponentID),
		zap.Uint8("seq", msg.Sequence),
		zap.String("type", MessageName(msg.Payload)),
	}

	switch m := msg.Payload.(type) {
	case *common.MessageHeartbeat:
		fields = append(fields,
			zap.Uint32("custom_mode", m.CustomMode),
			zap.Uint8("mavlink_version", m.MavlinkVersion),
			zap.String("vehicle", fmt.Sprint(m.Type)),
			zap.String("autopilot", fmt.Sprint(m.Autopilot)),
		)
	case *common.MessageGpsRawInt:
		fields = append(fields,
			zap.Float64("lat", float64(m.Lat)/1e7),
			zap.Float64("lon", float64(m.Lon)/1e7),
			zap.Uint8("satellites", m.SatellitesVisible),
		)
	case *common.MessageSysStatus:
		fields = append(fields,
			zap.Float64("voltage", float64(m.VoltageBattery)/1000),
			zap.Int8("battery_remaining", m.BatteryRemaining),
		)
	case *common.MessageStatustext:
		fields = append(fields,
			zap.String("severity", fmt.Sprint(m.Severity)),
			zap.String("text", m.Text),
		)
	default:
		fields = append(fields, zap.String("hex", hex.EncodeToString(msg.Raw)))
	}

	logging.Debug("MAVLink message", fields...)
}
