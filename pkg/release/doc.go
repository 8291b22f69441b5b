/*
Package release checks a GitHub repository's latest published release
against the installed version.

The installed version comes from, in order, a git tag pointing at the
checked-out commit, the VERSION marker at the install root, or "unknown".
The remote side is one call to the GitHub releases API via go-github,
authenticated with an oauth2 static token when one is configured and bounded
by a timeout (15s by default).

Tags are normalized (leading "v" and whitespace stripped) and compared as
semantic versions when both parse, otherwise by string inequality. Any
transport or API failure is returned as a NetworkFailure UpdateError; the
only local side effect of a check is caching its result in the state store.

Scheduler runs a job on a robfig/cron spec ("@every 6h" by default, "@never"
to disable). Overlapping ticks are skipped and panics are recovered.
*/
package release
