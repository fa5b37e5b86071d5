/*
Package ports defines the driven ports (interfaces) for the Genie engine.

These interfaces decouple the conversation logic from external implementations,
allowing the engine to work with a remote content service, local flow files,
and various storage backends.

# Key Interfaces

  - ContentService: question nodes, reviews and session analytics.
  - NodeSource: enumerates the raw graph, for validation and introspection.
  - ConversationStore: persists and loads conversation snapshots.
  - DistributedLocker: Provides distributed locking for handling concurrent conversation access.
*/
package ports
