package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/models"
)

// Answerer resolves one question.
type Answerer interface {
	Answer(ctx context.Context, q models.Question) (*models.Outcome, bool)
}

// REPL reads questions line by line and prints each answer.
type REPL struct {
	answerer Answerer
	renderer *Renderer
	in       io.Reader
	out      io.Writer
	prompt   string
	logger   zerolog.Logger
}

// NewREPL creates a loop reading from in and printing to out.
func NewREPL(answerer Answerer, in io.Reader, out io.Writer, logger zerolog.Logger) *REPL {
	return &REPL{
		answerer: answerer,
		renderer: NewRenderer(out),
		in:       in,
		out:      out,
		prompt:   "fedquery> ",
		logger:   logger.With().Str("component", "repl").Logger(),
	}
}

// Run loops until exit, end of input or ctx cancellation. A failing
// iteration is reported and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(r.out, r.prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}
		switch strings.ToLower(question) {
		case "exit", "quit", "q":
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}

		r.ask(ctx, models.Question(question))
	}
}

// ask answers one question and prints the result.
func (r *REPL) ask(ctx context.Context, q models.Question) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error().Interface("panic", v).Str("question", q.String()).Msg("Question failed")
			r.renderer.Outcome(models.NewFailureOutcome("", errors.New(errors.CodeInternal, fmt.Sprint(v))), false)
		}
	}()

	outcome, cached := r.answerer.Answer(ctx, q)
	r.renderer.Outcome(outcome, cached)
	fmt.Fprintln(r.out)
}
