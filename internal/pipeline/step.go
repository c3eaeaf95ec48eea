package pipeline

import (
	"context"

	"github.com/docenthq/docent/internal/item"
)

// Step processes one submission and returns the result to record under the
// step's registered name. Implementations must not persist anything
// themselves; the pipeline records results through the source so a failed
// step leaves no trace.
type Step interface {
	Process(ctx context.Context, it *item.Item) (item.Result, error)
}

// StepFunc adapts a function to the Step interface.
type StepFunc func(ctx context.Context, it *item.Item) (item.Result, error)

// Process implements Step.
func (f StepFunc) Process(ctx context.Context, it *item.Item) (item.Result, error) {
	return f(ctx, it)
}

// NamedStep pairs a step with the suffix it registers under.
type NamedStep struct {
	Name string
	Step Step
}

// PreStepper is implemented by steps that need preparation work registered
// ahead of them. Sub-steps register as "<name>.<sub>" in declaration order.
type PreStepper interface {
	PreSteps() []NamedStep
}

// PostStepper is implemented by steps and sources that contribute follow-up
// work registered after them, namespaced the same way.
type PostStepper interface {
	PostSteps() []NamedStep
}

// Entry is one submission yielded by a source's collect pass.
type Entry struct {
	Key  string
	Item *item.Item
}

// Source owns the submissions a pipeline grades. Collect materializes the
// current set (fetching anything stale), Ref reloads a single persisted
// document, and UpdateSteps folds freshly recorded results into it.
type Source interface {
	Collect(ctx context.Context) ([]Entry, error)
	Ref(key string) (*item.Item, error)
	UpdateSteps(key string, results map[string]item.Result) (*item.Item, error)
}
