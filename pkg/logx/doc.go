// Package logx configures memocare's structured logging on top of zerolog.
//
// Components receive a Logger value and derive scoped loggers with With().
// The Service owns the sinks (console, file, operator alerts) and can swap them
// at runtime when the config is reloaded.
package logx
