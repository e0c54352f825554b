// Package observability builds the process logger.
//
// Every component receives a *zap.Logger through its constructor; this
// package only decides encoding and level from configuration.
package observability
