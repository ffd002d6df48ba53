/*
Package markov implements a generic higher-order Markov chain engine for
constrained procedural generation.

A Chain of order N maps ordered windows of N prior elements to a weighted
distribution over the element that follows. Windows may declare wildcard
dimensions at construction: slots that can be left unknown at query time,
in which case resolution marginalizes over every stored context that
agrees on the remaining slots. Sampling is O(log N) in the number of
distinct outcomes per context, which keeps per-cell queries cheap in
wavefunction-collapse style tile synthesis.

The engine works over any comparable element type, never interprets
element semantics, and keeps all state in memory. Trained state can be
captured as a Snapshot and round-tripped through JSON, or persisted to
SQLite via the chainstore package.
*/
package markov
