package domain

import "time"

// PositionSample is one position report for a driver, captured at high
// frequency. The most recent sample per entity lives in the location cache;
// all samples are appended to durable history.
type PositionSample struct {
	DriverID   string  `json:"driver_id"`
	DeliveryID string  `json:"delivery_id,omitempty"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Bearing    float64 `json:"bearing,omitempty"`
	SpeedKph   float64 `json:"speed_kph,omitempty"`
	AccuracyM  float64 `json:"accuracy_m,omitempty"`
	// Status is the driver's lifecycle status in effect at capture time.
	Status     DriverStatus `json:"status"`
	RecordedAt time.Time    `json:"recorded_at"`
}
