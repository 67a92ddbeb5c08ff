package command

import "strings"

// Action is what a set of commands asks the run to do.
type Action int

const (
	// None means no command was found.
	None Action = iota
	// DoMerge merges unconditionally.
	DoMerge
	// DoMergeAfter merges once Decision.Target has merged.
	DoMergeAfter
	// Conflict means the commands disagree and nothing is done.
	Conflict
)

// Decision is the single action derived from all commands on a PR.
type Decision struct {
	Action Action

	// Target is the dependency URL for DoMergeAfter.
	Target string

	// Reason explains a Conflict.
	Reason string
}

// Decide reduces cmds to one decision. Repeats of the same command count
// once. Any mix of distinct commands (merge together with merge-after, or
// merge-after naming two different URLs) is a Conflict.
func Decide(cmds []Command) Decision {
	seen := make(map[Command]bool)
	var distinct []Command
	for _, c := range cmds {
		if seen[c] {
			continue
		}
		seen[c] = true
		distinct = append(distinct, c)
	}

	switch len(distinct) {
	case 0:
		return Decision{Action: None}
	case 1:
		c := distinct[0]
		if c.Kind == MergeAfter {
			return Decision{Action: DoMergeAfter, Target: c.Target}
		}
		return Decision{Action: DoMerge}
	}

	names := make([]string, 0, len(distinct))
	for _, c := range distinct {
		names = append(names, "\""+c.String()+"\"")
	}
	return Decision{
		Action: Conflict,
		Reason: "conflicting commands: " + strings.Join(names, ", "),
	}
}
