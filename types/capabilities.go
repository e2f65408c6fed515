package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindLEDBank     Kind = "led_bank"
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
)
