package config

import (
	"os"
	"strings"
)

// StrictStockAvailability makes sale/transfer mutations hard-fail when the
// requested quantity exceeds the on-hand quantity (instead of relying on the
// schema-level clamp).
//
// Set via env:
// - STRICT_STOCK_AVAILABILITY=false to disable (enabled by default)
func StrictStockAvailability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_STOCK_AVAILABILITY")))
	if v == "" {
		return true
	}
	return !(v == "0" || v == "false" || v == "no" || v == "n")
}

// EventsEnabled gates post-commit Pub/Sub notifications.
// Disabled automatically when no topic is configured (local dev, tests).
func EventsEnabled() bool {
	return strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")) != ""
}
