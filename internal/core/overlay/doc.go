// Package overlay implements the anonymity-overlay adapter (spec §4.9,
// component C9). The overlay-controller process itself — the thing that
// actually speaks a hidden-service control protocol — is an explicit
// external collaborator the rest of the system treats as a black box
// (spec §1 "Explicitly out of scope"); this package only owns the
// adapter boundary: starting/stopping that process, reading back the
// onion address and SOCKS5 endpoint it reports, and exposing both to the
// DHT manager (C4) and transport (C1).
package overlay
