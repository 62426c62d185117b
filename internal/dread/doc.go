// Package dread contains the derivation core: the decay engine that shrinks
// area death counters over time, the ranking engine that assigns dread levels
// from the current counters, and the scheduler that drives both on their
// respective intervals.
package dread
