// Package ci contains the model for project CI configuration files.
//
// It decodes Zuul-style YAML documents (project pipelines, job definitions,
// project templates) while preserving entry order, and builds a Registry of
// known jobs and templates used for static validation.
package ci
