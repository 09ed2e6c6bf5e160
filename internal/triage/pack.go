package triage

import "fmt"

// Packing policy.
const (
	// MaxTaskBlocks caps task and partial blocks per plan; the wrap-up block
	// is not counted.
	MaxTaskBlocks = 5
	// MinSliceMinutes is the smallest partial allocation worth scheduling.
	MinSliceMinutes = 5
	// MaxBufferMinutes bounds the wrap-up reserve taken off the budget.
	MaxBufferMinutes = 3

	PartialSuffix = " (partial)"
	WrapUpTitle   = "Wrap up & notes for next session"
)

// Pack lays ranked tasks out greedily from minute 0. A task that does not
// fit ends the pass: it is either truncated into one partial block (when at
// least MinSliceMinutes remain) or dropped. Whatever room is left before the
// budget becomes a wrap-up block.
func Pack(tasks []Task, budget int) ([]Block, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidBudget, budget)
	}
	items := make([]Task, len(tasks))
	for i, t := range tasks {
		nt, err := t.normalized(i)
		if err != nil {
			return nil, err
		}
		items[i] = nt
	}

	buffer := min(MaxBufferMinutes, budget/10)
	usable := budget - buffer

	blocks := make([]Block, 0, min(len(items), MaxTaskBlocks)+1)
	cursor := 0
	for _, t := range items {
		if len(blocks) >= MaxTaskBlocks {
			break
		}
		d := t.EstimatedMinutes
		if cursor+d <= usable {
			blocks = append(blocks, Block{
				StartMinute: cursor,
				EndMinute:   cursor + d,
				TaskTitle:   t.Title,
				Kind:        BlockTask,
			})
			cursor += d
			continue
		}
		if usable-cursor >= MinSliceMinutes {
			blocks = append(blocks, Block{
				StartMinute: cursor,
				EndMinute:   usable,
				TaskTitle:   t.Title + PartialSuffix,
				Kind:        BlockPartial,
			})
			cursor = usable
		}
		break
	}

	if cursor < budget {
		blocks = append(blocks, Block{
			StartMinute: cursor,
			EndMinute:   budget,
			TaskTitle:   WrapUpTitle,
			Kind:        BlockWrapUp,
		})
	}
	return blocks, nil
}
