/*
Package transport moves dispatch envelopes from submitters to executors.

A Transport is a small contract - Start a handler, Dispatch an envelope,
DispatchDelayedRetry after a delay, Stop - with two implementations: an
in-process worker pool for single-node deployments and a message-broker
pipeline on Watermill for setups that want queue semantics.

# The Dispatch Envelope

A Dispatch carries only the task ID plus optional redelivery provenance
(attempt number, error class, original queue). The record itself stays
in the store; transports move pointers, not state. This is what makes
at-least-once delivery harmless - a duplicate envelope is just a second
claim attempt that loses the version race.

# InProc

	Dispatch ──► bounded queue ──► fixed worker pool ──► handler

NewInProc(workers, queueCapacity) runs a fixed pool over one buffered
channel. A full queue rejects the dispatch immediately rather than
blocking the submitter; the record stays QUEUED and the recovery sweeper
re-dispatches it later. Delayed retries are timers tracked per task and
cancelled on Stop. Handler panics are recovered per delivery so one bad
task cannot take down a worker.

# Broker

NewBroker wraps a Watermill gochannel pub/sub with the same worker-pool
consumption. Envelopes are JSON messages on a single topic, acked
unconditionally: redelivery is the framework's job, done through the
store and the retry manager, never the broker's. The constructor taking
an explicit publisher and subscriber exists so a deployment can swap the
gochannel for any other Watermill backend without touching the engine.

Delayed retries in the broker transport are scheduled with timers on the
publishing side, same as inproc; a lost timer is recovered by the
sweeper from the RETRYING record's NextAttemptAt.

# Choosing

The engine picks the transport from config ("inproc" or "broker").
InProc is the default and right for almost everyone; the broker buys
pluggable delivery at the cost of serialization. Both preserve the same
semantics because the semantics live in the store, not the pipe.
*/
package transport
