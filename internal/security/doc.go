// Package security provides the terminal's hardware identity and the
// primitives used to protect licensing data at rest.
//
// The Provider fingerprints the machine from its CPU, motherboard and
// primary network adapter. Sealer encrypts the cached license so a copied
// database cannot be read or replayed on another terminal.
package security
