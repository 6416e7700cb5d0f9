// Package delivery sends campaign messages through the configured
// messaging provider. It renders Liquid templates per client and calls
// the provider over HTTP with an idempotency key, so a retried send can
// never produce a duplicate message.
package delivery
