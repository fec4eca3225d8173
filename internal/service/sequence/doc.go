// Package sequence runs drip sequences: enrollment, step advancement and
// engagement statistics.
//
// Step advancement is a compare-and-set on the enrollment's current step,
// so concurrent schedulers and replayed jobs cannot send a step twice or
// move an enrollment backwards. Opens and clicks arrive from the tracking
// pipeline at least once; events are keyed by ID and applied atomically
// with the enrollment update, so redeliveries are no-ops.
package sequence
