package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/engine"
)

var (
	playSession string
	playActor   string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start an interactive session with the keeper",
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playSession, "session", "default", "session identifier; reuse to continue a prior session")
	playCmd.Flags().StringVar(&playActor, "actor", "Rowan", "name of the player character")
}

func runPlay(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, tracker, err := a.orchestrator()
	if err != nil {
		return err
	}

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		<-sigch
		fmt.Println("\nExiting...")
		cancel()
	}()

	// Stdin reader goroutine so the prompt loop can also react to ctx.
	inputCh := make(chan string)
	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
		close(inputCh)
	}()

	fmt.Println("The keeper is listening. (Ctrl-C to quit)")
outer:
	for {
		fmt.Print("[94mYou[0m: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			break outer
		case line, ok = <-inputCh:
			if !ok {
				break outer
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fmt.Print("[93mKeeper[0m: ")
		err := orch.ProcessTurn(ctx, engine.TurnRequest{
			SessionID: playSession,
			Actor:     playActor,
			UserText:  line,
		}, func(chunk string) { fmt.Print(chunk) })
		fmt.Println()
		if err != nil {
			if ctx.Err() != nil {
				break outer
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: stdin read error: %v\n", err)
	}

	in, out, calls := tracker.Totals()
	a.log.Info("session closed",
		zap.Int64("model_calls", calls),
		zap.Int64("input_tokens", in),
		zap.Int64("output_tokens", out))
	return nil
}
