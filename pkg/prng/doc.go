/*
Package prng provides the small deterministic generators used by the word
engine.

State is the caller-owned 32-bit generator that the N-word sampler threads
through every call: Next is a pure function from a state to the following
state and a draw, so identical inputs always replay identical output.
SplitMix is the 64-bit source kept inside the library for generators whose
state is not exposed to the caller.
*/
package prng
