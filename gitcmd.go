// Package gitcmd runs a single git invocation as an event-driven actor whose
// entire state is handed back to the host between deliveries.
package gitcmd

// Version is the released version of gitcmd.
const Version = "0.1.0"
