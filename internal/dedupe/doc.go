// Package dedupe provides a small time-based cache of seen keys, used to
// ignore accidental duplicate submissions within a short window.
package dedupe
