// Package requirements parses installer dependency manifests: one package
// constraint per line with optional extras, version specifiers, environment
// markers and a trailing license comment.
//
// Entry order is preserved verbatim because it is significant to the external
// installer's dependency resolution. Blank lines and full-line comments are
// kept as entries so a file can be reported on without reordering.
package requirements
