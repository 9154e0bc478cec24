// Package optimizer tunes how many vectors the fast tier and the index tier
// keep resident so that queries meet a latency target with as little memory
// as possible.
//
// Check measures one configuration: it applies the two tier sizes, runs a
// representative query, counts the store reads it caused (num_db) and
// compares that against the tolerance theta derived from the query time and
// the measured store latency. Optimize repeats Check with sizes predicted by
// PredictSmaller until a configuration fails, then keeps the smallest one
// that passed. Every accepted configuration is pushed on a record stack;
// ObserveQuery pops it and restores larger sizes when live queries start
// reading the store more than the record tolerates.
package optimizer
