// Package serial implements the binary cursor and type registry used to put
// application values on the wire.
//
// All numeric values are fixed width and little-endian. Floating point values
// travel as their IEEE 754 bit patterns. Strings carry a one-byte prefix holding
// len+1, so zero can mean a null string and the longest string is 254 bytes.
// Sequences and mappings carry a two-byte element count. Nothing on the wire
// names a type: both ends must decode with the same static type, looked up in a
// Registry.
//
//	r := serial.NewRegistry()
//	_ = serial.RegisterCustom[Player](r)
//
//	pool := serial.NewWriterPool(r, 1024)
//	data, err := serial.Marshal(pool, Player{Name: "ana"})
//	p, err := serial.Unmarshal[Player](r, data)
//
// A Registry must be fully populated before it is used from more than one
// goroutine. Writers and Readers are not safe for concurrent use.
package serial
