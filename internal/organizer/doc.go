// Package organizer performs the safe file mutations: backup before change,
// tag rewrite, atomic move into the library layout, ledger append, and
// ledger-driven rollback.
package organizer
