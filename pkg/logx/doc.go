// Package logx is a thin structured logging layer over zerolog.
//
// Components receive a Logger value and derive scoped loggers with With().
// The zero value is a safe no-op, which keeps constructors testable without
// threading writers everywhere.
package logx
