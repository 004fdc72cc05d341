// Package corpus holds the word lists the N-word sampler draws from and the
// registry that maps small integer ids to them.
package corpus
