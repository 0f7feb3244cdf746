// Package cli reads name pairs from stdin and prints verdicts, for
// debugging a model without running a server.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/streetmatch/pkg/match"
	"github.com/bastiangx/streetmatch/pkg/model"
)

// Matcher is the part of the engine the CLI drives.
type Matcher interface {
	Compare(ctx context.Context, name1, name2 string, feedback *int) (match.Verdict, error)
	Info() match.Info
	Terms(prefix string) []string
}

// InputHandler processes lines of the form
//
//	name1 | name2 [| label]
//
// where label is 0, 1 or 2 and is applied as feedback. Lines starting with
// ':' are commands: ":info" and ":terms <prefix>".
type InputHandler struct {
	matcher      Matcher
	in           io.Reader
	out          io.Writer
	requestCount int
}

// NewInputHandler reads from stdin and writes to stdout.
func NewInputHandler(m Matcher) *InputHandler {
	return NewInputHandlerWithIO(m, os.Stdin, os.Stdout)
}

// NewInputHandlerWithIO is NewInputHandler over custom streams.
func NewInputHandlerWithIO(m Matcher, in io.Reader, out io.Writer) *InputHandler {
	return &InputHandler{matcher: m, in: in, out: out}
}

// Start loops until the input ends or ctx is cancelled. Lines are read on a
// separate goroutine so cancellation does not wait for the next line.
func (h *InputHandler) Start(ctx context.Context) error {
	log.Print("streetmatch CLI")
	log.Print("type 'name1 | name2 [| label]' and press Enter (Ctrl+C to exit):")

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(h.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			h.handleInput(ctx, line)
		}
	}
}

func (h *InputHandler) handleInput(ctx context.Context, line string) {
	h.requestCount++
	if cmd, ok := strings.CutPrefix(line, ":"); ok {
		h.handleCommand(cmd)
		return
	}

	parts := strings.Split(line, "|")
	if len(parts) < 2 || len(parts) > 3 {
		log.Errorf("Expected 'name1 | name2 [| label]', got %q", line)
		return
	}
	var feedback *int
	if len(parts) == 3 {
		label, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			log.Errorf("Label must be 0, 1 or 2: %q", parts[2])
			return
		}
		feedback = &label
	}

	start := time.Now()
	v, err := h.matcher.Compare(ctx, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), feedback)
	log.Debugf("Took [ %v ] for request #%d", time.Since(start), h.requestCount)
	if err != nil && !errors.Is(err, match.ErrPersistence) {
		log.Errorf("Compare failed: %v", err)
		return
	}
	h.printVerdict(v)
	if err != nil {
		log.Warnf("Feedback applied but not saved: %v", err)
	} else if feedback != nil {
		log.Infof("Learned %s for this pair", model.Label(*feedback))
	}
}

func (h *InputHandler) handleCommand(cmd string) {
	name, arg, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	switch name {
	case "info":
		info := h.matcher.Info()
		fmt.Fprintf(h.out, "model=%s policy=%s dim=%d vocabulary=%d updates=%d\n",
			info.Kind, info.Policy, info.Dim, info.VocabularySize, info.Updates)
	case "terms":
		terms := h.matcher.Terms(strings.TrimSpace(arg))
		if len(terms) == 0 {
			log.Warnf("No vocabulary terms start with %q", arg)
			return
		}
		fmt.Fprintln(h.out, strings.Join(terms, " "))
	default:
		log.Errorf("Unknown command %q, try :info or :terms <prefix>", name)
	}
}

func (h *InputHandler) printVerdict(v match.Verdict) {
	label := fmt.Sprintf("\033[38;5;75m%s\033[0m", v.Label)
	fmt.Fprintf(h.out, "%-20s (predicted %s, distance %d, similarity %.2f, cosine %.2f, confidence %.2f)\n",
		label, v.Predicted, v.EditDistance, v.Similarity, v.Cosine, v.Confidence)
	fmt.Fprintf(h.out, "  %q vs %q\n", v.Name1, v.Name2)
}
