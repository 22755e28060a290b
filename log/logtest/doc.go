/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a recording implementation of log.FieldLogger
// for asserting on what a component has logged.
package logtest
