// Package log captures protocol and lifecycle events for offline analysis.
//
// It is separate from operational logging (slog): operational logs say
// what the device is doing, captures record every fragment, message and
// mode transition in a machine-readable form.
//
//	// Development: mirror events to the console.
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Device: bounded capture on flash plus console.
//	fl, _ := log.NewFileLogger("/data/matter.mlog", 0)
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
//	// Keep only errors in a second capture.
//	errs := log.CategoryError
//	m := log.NewMultiLogger(fl).AddFiltered(errFile, log.Filter{Category: &errs})
//
// # Layers
//
//   - BTP: commissioning fragments (FrameEvent)
//   - UDP: operational datagrams (FrameEvent)
//   - Interaction: decoded requests, responses, reports (MessageEvent)
//   - Stack: mode, window, link and radio transitions (StateChangeEvent)
package log
