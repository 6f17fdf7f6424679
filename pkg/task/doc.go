/*
Package task defines the executable contract and per-execution context.

Application work plugs into the framework through this package: an
Executable declares a task type, validates its parameters, and executes
against a Context that hides records, versions and stores behind a
typed, task-scoped API.

# The Executable Contract

	type Executable interface {
		Type() string
		ValidateParameters(params json.RawMessage) error
		Execute(ctx *Context) types.Outcome
	}

Type is a stable key like "chapter.continuation"; it is what submitters
name and what the registry resolves. ValidateParameters runs twice - at
submission, so callers get synchronous feedback, and again before
execution, so a record whose schema changed underneath it fails cleanly
instead of inside Execute. Execute does the work and reports exactly one
Outcome; it must not write terminal status itself.

Optional interfaces refine the contract:

	Cancellable      opts a task into mid-flight cancellation
	QueuedHook       observe submission
	StartedHook      observe the claim
	CompletedHook    observe success
	FailedHook       observe failure (including each failed attempt)

# Context

The Context is everything an executable may touch during a run:

	Parameters(&p)        typed payload decoding
	UpdateProgress(data)  merged progress JSON + progress event
	SubmitSubTask(t, p)   fan out a child task under this parent
	SubTaskSummary()      current count-by-status of children
	AwaitSubTasks(poll)   block until all children settle
	Cancelled()           has cancellation been requested
	Context()             the underlying context.Context
	LogInfo / LogError / Logger()  task-tagged structured logging

The context tracks the record version across progress writes, so the
executor's terminal write afterwards uses the right expected version.
That bookkeeping is exactly the kind of thing executables must not see.

AwaitSubTasks polls the parent's sub-task summary until every child is
terminal, honoring the execution context for cancellation. Children are
ordinary tasks: they retry, dead-letter and cancel independently, and
their terminal states roll up into the parent's summary.

# Registry

The Registry maps task type keys to executables. Registration happens
once at startup; duplicate or empty keys are rejected. Resolve is the
executor's lookup; Types lists registered keys sorted, for logs and
operator output.

# Echo

Echo is the built-in smoke-test executable: it validates that its
parameters are a JSON object and returns them unchanged as its result.
Deployments keep it registered as a cheap end-to-end probe.
*/
package task
