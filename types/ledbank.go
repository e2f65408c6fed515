package types

// ------------------------
// LED bank capability (BD18378 and compatibles)
// ------------------------

// LEDBankInfo is published under hal/cap/.../info as Info.Detail.
type LEDBankInfo struct {
	Bus      string `json:"bus"`      // e.g. "spi0"
	Channels int    `json:"channels"` // 12 for the BD18378
}

// LEDBankValue is the retained value payload: one enable bit per channel,
// bit k = channel k. Reflects the state last flushed to hardware.
type LEDBankValue struct {
	Mask uint16 `json:"mask"`
}

// Control payloads.

// LEDBankSet switches a single channel; verb "set".
type LEDBankSet struct {
	Channel uint8 `json:"channel"` // 0..11
	On      bool  `json:"on"`
}

// LEDBankMask replaces the whole enable mask; verb "set_mask".
type LEDBankMask struct {
	Mask uint16 `json:"mask"` // bit k = channel k, bits 12..15 must be zero
}

// LEDBankCalibrate writes one channel's calibration byte; verb "calibrate".
type LEDBankCalibrate struct {
	Channel uint8 `json:"channel"` // 0..11
	Value   uint8 `json:"value"`
}
