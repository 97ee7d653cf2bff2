// Package rate throttles clients that keep presenting bad session pairs.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit, keyed
// srl:rot:<client>. Only failures are counted, so a client rotating
// legitimately never approaches the budget.
//
// # What this package must NOT do
//
//   - Decide what a client identifier is (the caller passes it in).
//   - Be imported outside the sessionkit module.
package rate
