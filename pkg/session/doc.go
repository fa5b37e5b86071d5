/*
Package session implements conversation management and persistence orchestration.

A Manager loads a conversation snapshot, rebuilds the controller, applies one
operation and saves the result, serializing operations per conversation id with
a local ref-counted mutex and, optionally, a distributed lock shared across
replicas. Observers receive the transcript diff of every change.
*/
package session
