package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (the value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPicoLedbank = `{
  "hal": {
    "devices": [
      {"id": "bank0", "type": "bd18378", "params": {"bus": "spi0", "initial_mask": 0}},
      {"id": "cabinet", "type": "shtc3", "params": {"bus": "i2c0"}}
    ],
    "pollers": [
      {"domain": "env", "kind": "temperature", "name": "cabinet", "verb": "read", "interval_ms": 5000, "jitter_ms": 250}
    ]
  },
  "heartbeat": {
    "interval_ms": 10000
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico-ledbank": []byte(cfgPicoLedbank),
}
