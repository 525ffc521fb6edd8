// Package lint statically validates the project's CI pipeline manifests and
// dependency manifests.
//
// Pipeline manifests are checked against a local registry of known job and
// template definitions: every referenced name must resolve, gate needs a
// queue, and jobs that cannot block a merge do not belong in gate. Dependency
// manifests must parse line by line and carry license annotations.
package lint
