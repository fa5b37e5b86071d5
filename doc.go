/*
Package genie is the engine behind a guided sales chat: a visitor walks a graph of
question nodes, customer reviews are surfaced at fixed beats of the conversation,
and every answer is recorded against an analytics session.

The engine is organized around four collaborators, each in its own package:

  - content: the client of the external content service (timeouts, typed failures,
    review fallback, choice normalization and intent tagging).
  - reviews: a per-conversation review pool with de-duplicated injection.
  - flow: the conversation controller (start, advance, abandon).
  - tracker: the session lifecycle (create, record, finalize exactly once).

The Engine type wires them together. Hosts (the HTTP API, the MCP server and the
terminal runner) drive conversations through it and persist snapshots between
requests.

# Usage

	eng, err := genie.New("./flow.yaml")
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	conv := eng.NewConversation("", &domain.ProductContext{ProductCode: "P100"})
	if err := conv.Start(ctx); err != nil {
		log.Fatal(err)
	}

	for conv.State() == domain.StateAwaitingChoice {
		node := conv.CurrentNode()
		// Show conv.Messages(), then pass the visitor's pick back.
		if err := conv.Advance(ctx, flow.Selection{Label: node.Choices[0].Label, NodeID: node.ID}); err != nil {
			log.Fatal(err)
		}
	}
	fmt.Println("redirect:", conv.RedirectURL())
*/
package genie
