// Package worker holds the background loops of the platform: dispatching
// due interactions to the messaging provider, expiring cashback lots, and
// feeding daily clock ticks into the trigger pipeline. Each worker is a
// poll loop with Start/Stop lifecycle and takes a distributed lock so only
// one instance of a fleet does the work.
package worker
