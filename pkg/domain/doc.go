/*
Package domain contains the core models of the Genie conversational sales-flow engine.

It defines the question graph as seen by a conversation, the session records that
are synchronized to the content service, and the transcript shown to the visitor.
This package is kept pure and free of I/O or persistence, following Hexagonal
Architecture principles.

# Key Entities

  - QuestionNode: a prompt with its ordered Choices and optional Attachments.
  - Choice: a labelled edge, tagged with an Intent once on load.
  - NodeResult: a node, a terminal redirect, or both.
  - ConversationSession / ResponseRecord / SessionPatch: the analytics records.
  - Message: one transcript entry (bot or user).
  - ConversationSnapshot: the serializable state of one conversation.
*/
package domain
