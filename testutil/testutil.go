/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertion helpers shared by tests of this module.
package testutil

type tHelper interface {
	Helper()
}
