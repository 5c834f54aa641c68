// Package connreg implements the connection registry (spec §4.5,
// component C5): the two-map peer/endpoint index, insert arbitration,
// and disposal that every established connection — real or virtual —
// is tracked through.
package connreg
