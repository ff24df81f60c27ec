// Package device defines the contract between the BLE session core and the
// radio transport that drives it.
//
// The package contains:
//   - AdapterState, the power/availability state reported by the radio
//   - Identifier, an immutable 16-bit or 128-bit GATT UUID
//   - the closed Event set emitted by a transport
//   - the Transport command interface consumed by the session
//   - the SessionError taxonomy shared by the session and transports
//
// Transports never block the caller: every command is fire-and-forget and
// its outcome is delivered later as an Event through an EventHandler.
package device
