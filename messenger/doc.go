// Package messenger moves typed messages over a gamenet transport.
//
// Every payload starts with a five-byte envelope: a kind byte (simple or
// response), the 16-bit hash of the message type name and a 16-bit
// correlation id, all little-endian. The body that follows is encoded with a
// serial.Registry. Responses prefix their body with an error flag and carry
// either an error string or the response value.
//
//	types := serial.NewRegistry()
//	reg, _ := messenger.NewRegistry(types)
//	_ = messenger.RegisterUser[Chat](reg)
//
//	h := messenger.NewHandler(reg, client)
//	_ = messenger.SetListener(h, func(m messenger.Message[Chat]) { ... })
//	rsp := messenger.Request[Chat, Chat](ctx, h, Chat{Text: "hi"}, 0)
//
// Both peers must register the same message types under the same names.
package messenger
