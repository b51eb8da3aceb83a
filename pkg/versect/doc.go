/*
Package versect provides a Go interface for bisecting release histories: given
two endpoint versions and a test payload, it locates the adjacent release pair
at which the payload's observable outcome flips from passing to failing.

The ordered set of known releases is managed by a [Catalog], usually wrapped in
a [ReleaseService] which keeps the list fresh from an upstream feed with a
TTL-gated background refresh and a persisted on-disk cache.

A bisection is described by a [Job], either populated manually or read from a
yaml config via [GetJobFromConfig]. For a manually created job to work, at
least the following fields have to be populated:
  - GoodVersion & BadVersion
  - PayloadSource
  - Releases, Executables & Payloads

After a job struct was acquired, the session can be started using [Job.Run].
It runs the payload against one midpoint release at a time, narrowing the
window on every passed or failed outcome, and returns a [Boundary] holding the
last known-good and first known-bad versions. An inconclusive run (launch
failure or abnormal exit code) aborts the session with an [InconclusiveError],
since it carries no directional signal.

[Installer] and [PayloadLoader] are the default collaborators for turning
version references into runnable executables and source descriptors into
runnable payloads; both can be replaced through the [ExecutableResolver] and
[PayloadResolver] interfaces.
*/
package versect
