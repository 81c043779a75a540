package source

import (
	"encoding/json"
	"time"

	"github.com/billglover/dragonsync/internal/model"
)

// systemStatusPayload mirrors the kit's status ZMQ message (spec §4.1,
// grounded on dragonsync.py's status_socket handling).
type systemStatusPayload struct {
	SerialNumber string  `json:"serial_number"`
	Latitude     float64 `json:"gps_latitude"`
	Longitude    float64 `json:"gps_longitude"`
	Altitude     float64 `json:"gps_altitude"`
	SpeedMPS     float64 `json:"gps_speed"`
	CourseDeg    float64 `json:"gps_course"`

	CPUUsage     float64 `json:"cpu_usage"`
	MemTotal     float64 `json:"memory_total"`
	MemAvailable float64 `json:"memory_available"`
	DiskTotal    float64 `json:"disk_total"`
	DiskUsed     float64 `json:"disk_used"`
	Temperature  float64 `json:"temperature"`
	Uptime       float64 `json:"uptime"`

	PlutoTemp *float64 `json:"pluto_temp"`
	ZynqTemp  *float64 `json:"zynq_temp"`
}

// parseSystemStatus decodes a status ZMQ message into a SystemStatus. It
// returns false if the message lacks a usable serial number.
func parseSystemStatus(raw json.RawMessage, now time.Time) (model.SystemStatus, bool) {
	var p systemStatusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.SystemStatus{}, false
	}
	if p.SerialNumber == "" {
		return model.SystemStatus{}, false
	}

	status := model.SystemStatus{
		Serial:       p.SerialNumber,
		Position:     model.Position{Lat: p.Latitude, Lon: p.Longitude, AltM: p.Altitude},
		SpeedMPS:     p.SpeedMPS,
		CourseDeg:    p.CourseDeg,
		CPUUsage:     p.CPUUsage,
		MemTotalMB:   p.MemTotal,
		MemAvailMB:   p.MemAvailable,
		DiskTotalMB:  p.DiskTotal,
		DiskUsedMB:   p.DiskUsed,
		TemperatureC: p.Temperature,
		UptimeS:      p.Uptime,
		ReceivedAt:   now,
	}
	if p.PlutoTemp != nil {
		status.PlutoTempC = *p.PlutoTemp
		status.HasSDRTemps = true
	}
	if p.ZynqTemp != nil {
		status.ZynqTempC = *p.ZynqTemp
		status.HasSDRTemps = true
	}
	return status, true
}
