// Package logging is the levelled logger shared by the spree packages and
// the CLI. Entries go to stderr and may be fanned out to a file and the
// systemd journal.
package logging
