// Package textutil provides the small text helpers shared by the listing,
// ledger and delivery packages.
//
//   - Fingerprint and CosineSimilarity score fuzzy title matches. Tokens are
//     lowercased and folded to their unaccented form before counting.
//   - NaturalLess orders strings so that embedded numbers compare by value
//     ("Episode 2" sorts before "Episode 10").
//   - SanitizeFileName turns remote names into safe local file names.
package textutil
