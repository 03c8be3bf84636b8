// Package device defines the transport-neutral contracts between the BLE
// session manager and the platform radio:
//   - Radio and Link, implemented over go-ble in the goble subpackage
//   - Advertisement and Filter for peripheral selection
//   - the stable result-code error taxonomy shared by every layer
package device
