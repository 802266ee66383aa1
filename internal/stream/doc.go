// Package stream drives one streaming listener through the
// snapshot, encode, send, advance, sleep cycle.
//
// A Session owns its connection's write side. Peer input is never acted on;
// Drain only consumes it so control frames are processed and a closed peer is
// noticed. A session ends on the first transmit or serialization failure, or
// when its context is cancelled; there is no retry.
package stream
