package task

// ResultLookup resolves a task ID to its recorded terminal state and
// result bytes. The queue package supplies the concrete implementation;
// this package only depends on the narrow function shape to avoid an
// import cycle (queue already imports task).
type ResultLookup func(taskID string) (result []byte, state State, ok bool)

// ResolveArgs substitutes every Arg.Ref in t with the looked-up result of
// the task it references, returning plain encoded args/kwargs ready to
// pass to an App runner. A reference to anything other than a SUCCEEDED
// task is a fatal ErrDependencyUnresolved: the caller should mark t FAILED
// rather than run it against a missing or stale result.
func ResolveArgs(t *Task, lookup ResultLookup) (args [][]byte, kwargs map[string][]byte, err error) {
	args = make([][]byte, len(t.Args))
	for i, a := range t.Args {
		b, rerr := resolveOne(a, lookup)
		if rerr != nil {
			return nil, nil, rerr
		}
		args[i] = b
	}
	kwargs = make(map[string][]byte, len(t.Kwargs))
	for k, a := range t.Kwargs {
		b, rerr := resolveOne(a, lookup)
		if rerr != nil {
			return nil, nil, rerr
		}
		kwargs[k] = b
	}
	return args, kwargs, nil
}

func resolveOne(a Arg, lookup ResultLookup) ([]byte, error) {
	if a.Kind == ArgLiteral {
		return a.Literal, nil
	}
	result, state, ok := lookup(a.Ref)
	if !ok {
		return nil, ErrDependencyNotFound
	}
	if state != StateSucceeded {
		return nil, ErrDependencyUnresolved
	}
	return result, nil
}
