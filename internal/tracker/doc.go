// Package tracker defines the release, webhook and settings types shared by
// the fetch, reconcile, notify and admin subsystems, along with the ports
// those subsystems depend on.
package tracker
