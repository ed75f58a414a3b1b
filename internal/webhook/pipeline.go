package webhook

import (
	"context"
	"fmt"

	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/instance"
	"github.com/zapdesk/zapdesk/internal/message"
	"github.com/zapdesk/zapdesk/internal/thread"
)

// Event is the context value threaded through the upsert pipeline.
// Stages fill it in as the event moves along.
type Event struct {
	Envelope Envelope
	Instance instance.Instance
	Upsert   UpsertData
	Parsed   Parsed
	Contact  *contact.Contact
	Message  *message.Message
	Thread   *thread.Thread

	halted bool
	result Result
}

// Halt stops the pipeline after the current stage with the given
// acknowledgement.
func (e *Event) Halt(r Result) {
	e.halted = true
	e.result = r
}

// Stage is one named step of the upsert pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context, ev *Event) error
}

// Pipeline runs stages in order until one halts or fails.
type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes the pipeline and returns the final acknowledgement. A
// stage error aborts the remaining stages.
func (p *Pipeline) Run(ctx context.Context, ev *Event) (Result, error) {
	for _, stage := range p.stages {
		if err := stage.Run(ctx, ev); err != nil {
			return Result{}, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		if ev.halted {
			return ev.result, nil
		}
	}
	return OK("Webhook processed"), nil
}
