/*
Package verscepter provides a Go interface for finding the release of a runtime which first introduced a regression.

A bisection works on an ordered slice of [VersionRecord]-s, where index 0 is the oldest, known good, version and the last index is the newest, known bad, version.
Such a slice can be taken out of a release catalog using [SelectRange], which takes care of putting the older boundary first.

The decision engine is the [Bisector]. It is pure and knows nothing about who judges its candidates.
Every call to [Bisector.Continue] consumes one judgment and returns an [Outcome], which either holds the next version to test or the final [Boundary].

There are two drivers for a [Bisector]:
  - A [Session], which hands out [Candidate]-s on a channel to be rated by a human using [Candidate.IsGood] and [Candidate.IsBad].
  - A [Runner], which fully automates the bisection by running an [Executor] against every candidate using [Runner.AutoBisect].

Jobs can most easily be created by passing in a job config to [GetJobFromConfig].
A job knows its version catalog, the good and bad boundary and the executor it should use, and can be started using [Job.Run] or [Job.StartSession].
*/
package verscepter
