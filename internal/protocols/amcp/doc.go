// Package amcp implements the CasparCG AMCP wire protocol for the device
// layer.
//
// AMCP is a line-oriented text protocol over TCP, port 5250 by default.
// Frames end in CRLF. The server replies to commands with RET lines and
// pushes unsolicited INFO lines whenever a video channel's state changes:
//
//	RET 200 <data>            command response, 2xx is success
//	INFO <channel> <json>     channel state (format, width, height, fps)
//
// AMCP carries no message identifiers, so responses correlate to commands
// strictly in send order. The codec therefore declares FIFO correlation
// and the device layer does the bookkeeping.
//
// Register wires the family into a device registry:
//
//	amcp.Register(registry)
//	session, err := registry.Register(device.Config{Family: amcp.Family, ...})
package amcp
