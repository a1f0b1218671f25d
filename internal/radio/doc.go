// Package radio describes the Bluetooth Low Energy radio capability consumed by
// the session manager.
//
// Every request on Radio is fire-and-forget: it returns immediately and the
// outcome is reported later through the Delegate registered with SetDelegate.
// Requests made on behalf of a connection carry a Link (peripheral id plus
// connection epoch) and the radio echoes that Link back unchanged in the
// matching callback, which lets the consumer detect callbacks that belong to a
// connection it has already torn down.
//
// There is no completion signal for discovery: once a Connected callback was
// delivered the radio reports services, then characteristics per service, then
// descriptors per characteristic and values as they are read, and simply stops
// reporting when nothing is left.
package radio
