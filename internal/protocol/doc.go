// Package protocol implements the LEDnetWF strip controller wire codec.
//
// Inbound bytes (advertisement manufacturer data and connected-mode
// notifications) are decoded into a DeviceState, and outbound intents (color,
// background color, effect, brightness, power, LED strip settings) are encoded
// into checksummed packets. The codec performs no I/O: transports hand it
// bytes and transmit the packets it returns.
//
// Two dialects exist. Controllers reporting firmware major 0x80 speak the
// "extended" raw-hex notification format; everything else wraps a quoted hex
// payload in a text frame ("legacy").
//
// A DeviceState is not safe for concurrent use. Light wraps one DeviceState
// per physical controller behind a mutex and is what the agent uses.
package protocol
