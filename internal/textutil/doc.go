// Package textutil provides text helpers for passage ranking and file naming.
//
// RankPassages scores passages against a query with TF-IDF weighted cosine
// similarity. Tokenization lowercases text, splits on anything that is not a
// letter, digit or combining mark, and drops tokens shorter than three runes,
// so it works for Devanagari and Tamil as well as Latin scripts.
//
// Slug turns topics into manifest and audio file name stems.
package textutil
