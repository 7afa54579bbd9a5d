// Package access implements the force-join policy: an ordered set of
// channels a user must belong to before gated commands run, and the gate
// that checks membership against the transport.
package access
