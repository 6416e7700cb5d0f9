// Package trigger implements the campaign trigger evaluator.
//
// Given a business event, the evaluator looks up the active campaigns of
// the event's organization indexed by trigger type, applies each type's
// matching rule, and emits (campaign, client) match candidates. It never
// schedules anything itself; matches flow through the frequency guard and
// the interaction scheduler.
//
// A bad campaign definition is logged and skipped so it can never block
// the business event that carried it.
package trigger
