/*
Package runner implements the terminal loop that drives one conversation.

It acts as the bridge between the conversation controller and a console.
The runner prints transcript entries as they appear, reads the visitor's pick
(a choice number or its label) through a pluggable handler, and finalizes the
session as abandoned when the input ends or the context is cancelled.

# Key Components

  - Runner: the loop (start, render, read, advance).
  - IOHandler: decouples how choices are presented and read.
  - TextHandler: the interactive console implementation.
  - JSONHandler: JSON-Lines for scripted clients.

# Usage

	r := runner.New(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithStore(store),
	)

	conv := eng.NewConversation("", &domain.ProductContext{ProductCode: "P100"})
	if err := r.Run(ctx, conv); err != nil {
		log.Fatal(err)
	}
*/
package runner
