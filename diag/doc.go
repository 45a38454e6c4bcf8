// Package diag constructs the structured loggers used for diagnostic output,
// throughout this module.
//
// All loggers are [logiface.Logger] values, backed by [stumpy], which renders
// each event as a single JSON object. Events may be written directly (see
// [NewJSON]), or re-emitted via any [log/slog.Handler] (see [NewSlog] and
// [NewConsole]), which allows integration with existing slog pipelines.
//
// Packages in this module treat a nil logger as [Default]. Use [Disabled] to
// opt out of logging.
package diag
