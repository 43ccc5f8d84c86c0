// Package testutil contains helpers used across tests to reduce boilerplate
// when wiring stages and asserting on published events. These helpers are
// intentionally minimal and are not intended for production usage.
package testutil
