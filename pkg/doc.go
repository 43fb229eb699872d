// Package pkg provides shared utilities for the usbheadset device core.
//
// This package contains common functionality used by the device framework,
// the audio class driver and the host-side control client, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for USB protocol and audio path errors
//   - Component identifiers for log filtering
//
// Sub-packages hold the fixed-point arithmetic (fixed), configuration
// loading (config), the HTTP status monitor (monitor) and the usb.ids name
// database (linux/usbid).
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component tag per subsystem:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentControl, "sample rate changed", "rate", 32000)
//
// # Errors
//
// Errors are sentinel values wrapped with context by the caller:
//
//	if errors.Is(err, pkg.ErrUnsupportedRate) {
//	    // reject the request, state is unchanged
//	}
package pkg
