// Package session owns the radio session: it tracks discovered peripherals and
// their connection state, drives the GATT discovery cascade of connected
// peripherals and republishes every hardware event on an event bus.
//
// All state lives on a single event-loop goroutine. Commands, radio callbacks
// and snapshot queries are queued in arrival order and handled one at a time,
// so handlers never race with each other and callers never block on the radio.
package session
