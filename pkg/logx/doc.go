// Package logx configures alertd's structured logging.
//
// Logger is a small wrapper on top of zerolog. Console output is short and
// readable; file output is JSON. The zero Logger discards everything.
package logx
