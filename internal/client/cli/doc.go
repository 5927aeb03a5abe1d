// Package cli provides the interactive propsync command-line client.
//
// It drives an already wired client core (see package app) through a small
// REPL: login with offline fallback, cached reads of properties, units,
// payments and subscriptions, unit and property edits that are queued while
// offline, and manual inspection and replay of the offline queue.
//
// The REPL is started via App.Run(ctx, restored), which blocks until the user
// exits or input ends. See runREPL for the command list.
package cli
