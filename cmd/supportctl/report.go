package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tunnelkit/support/internal/support"
)

type reportWorkflow interface {
	Snapshot() support.Snapshot
	Draft() support.Draft
	SetMessage(string)
	TrySubmit(ctx context.Context) (<-chan support.State, error)
	TryRetry(ctx context.Context) (<-chan support.State, error)
	EditAgain() bool
}

type prompter struct {
	in  io.Reader
	out io.Writer

	scanner *bufio.Scanner
}

func (p *prompter) ask(question string) (string, bool) {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.in)
	}
	fmt.Fprint(p.out, question)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// runReport submits the draft and, after each failure, lets the user retry,
// edit the message or give up.
func runReport(ctx context.Context, wf reportWorkflow, p *prompter) error {
	for !wf.Draft().Valid() {
		msg, ok := p.ask("Describe the problem: ")
		if !ok {
			return errAborted
		}
		wf.SetMessage(msg)
	}

	fmt.Fprintln(p.out, "Sending report...")
	ch, err := wf.TrySubmit(ctx)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}

	for {
		if state := <-ch; state == support.StateSuccess {
			fmt.Fprintln(p.out, "Report sent. Thank you.")
			if contact := wf.Snapshot().ContactEmail; contact != "" {
				fmt.Fprintf(p.out, "We will reply to %s.\n", contact)
			}
			return nil
		}

		fmt.Fprintln(p.out, "Failed to send the report.")
		choice, ok := p.ask("[r]etry, [e]dit or [q]uit? ")
		if !ok {
			return errAborted
		}

		switch strings.ToLower(choice) {
		case "r", "retry":
			fmt.Fprintln(p.out, "Retrying...")
			if ch, err = wf.TryRetry(ctx); err != nil {
				return fmt.Errorf("retry report: %w", err)
			}
		case "e", "edit":
			wf.EditAgain()
			msg, ok := p.ask(fmt.Sprintf("Message [%s]: ", wf.Draft().Message))
			if !ok {
				return errAborted
			}
			if msg != "" {
				wf.SetMessage(msg)
			}
			fmt.Fprintln(p.out, "Sending report...")
			if ch, err = wf.TrySubmit(ctx); err != nil {
				return fmt.Errorf("send report: %w", err)
			}
		default:
			return errAborted
		}
	}
}
