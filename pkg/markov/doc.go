/*
Package markov trains, stores and walks Markov chain models.

Models live in a SQLite database (see SetupSchema and Store). Several models
share one vocabulary and one prefix table, so a word model and a character
model can sit side by side in the same file. Training, pruning, statistics
and JSON export/import all go through a Store.

Generation works on a Chain, an immutable in-memory snapshot of one model
produced by Store.Compile. Walks draw from a caller-supplied Rand, so the
same Rand stream always yields the same text, and a Cursor can step
through a Chain one token at a time.
*/
package markov
