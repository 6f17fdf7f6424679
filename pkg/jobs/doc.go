/*
Package jobs contains the built-in AI writing task executables.

These are the application-side proof of the framework contract: each
executable validates a typed parameter struct, works through the task
context, calls its AI provider through a throttled client, and maps
provider failures onto the error taxonomy so the retry machinery can do
its job.

chapter.continuation (ChapterContinuation) generates the next stretch
of a chapter: one provider call per attempt, progress reported before
the call, a fresh request ID per retry, cooperative cancellation while
the call is in flight.

summary.batch (SummaryBatch) fans a project's chapters out into one
summary.chapter sub-task each, then waits for all of them to settle.
The parent always reports success; child failures surface through the
sub-task summary, which turns the parent terminal status into
COMPLETED_WITH_ERRORS.

summary.chapter (ChapterSummary) is the leaf: a single summarization
call, usable standalone or as a batch child.

Executables take their provider.Client at construction, so deployments
choose real, throttled or scripted clients without the jobs changing.
*/
package jobs
