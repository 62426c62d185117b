// Package store provides SQLite-backed persistence for area death counters
// and dread levels. Bulk derivation passes (decay, ranking) are applied in a
// single transaction so a failed pass leaves the tables untouched.
package store
