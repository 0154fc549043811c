// Package fixture holds the inert collaborators of an isolation run: the
// configuration document the application reads at startup and the local
// content server its panes load.
//
// The server is shared read-only by every scenario of a run. Start it once
// before the first scenario and stop it once after the last; it keeps no
// per-request state.
package fixture
