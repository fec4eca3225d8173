// Package segment stores saved audiences and evaluates them.
//
// Dynamic segments are rule trees compiled by package segmentation;
// static segments hold explicit members. Resolve merges lists and
// segments into one deduplicated campaign audience.
package segment
