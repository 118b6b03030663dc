// Package trace captures flash bus traffic.
//
// Bus wraps a spiflash.Bus and turns every select..deselect session into one
// Event: the opcode, the bytes sent, the bytes received, the elapsed time
// and any transport error. Events go to a Logger:
//
//	// console, via slog at debug level
//	console := trace.NewSlogAdapter(slog.Default())
//
//	// capture file for later inspection with "w25q64 trace"
//	file, _ := trace.NewFileLogger("/tmp/flash.trace")
//
//	bus := trace.NewBus(transport, trace.NewMultiLogger(console, file))
//
// Capture files are a stream of CBOR encoded events.
package trace
