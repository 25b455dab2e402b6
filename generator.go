package bgtask

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/samber/lo"
)

// Generator produces items lazily. A non-nil error element ends the
// generator with that error; the worker does not pull past it.
type Generator[T any] = iter.Seq2[T, error]

// Factory builds the generator a task's worker runs. It is called once, in the
// goroutine that calls New. ctx is canceled when the task is canceled.
type Factory[T any] func(ctx context.Context, args Args) (Generator[T], error)

// Args are the positional and keyword arguments captured for a Factory when
// the task is constructed.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Params builds Args from positional values.
func Params(positional ...any) Args {
	return Args{Positional: positional}
}

// With returns a copy of a with the keyword key set to v.
func (a Args) With(key string, v any) Args {
	kw := make(map[string]any, len(a.Keyword)+1)
	for k, val := range a.Keyword {
		kw[k] = val
	}
	kw[key] = v
	return Args{Positional: slices.Clone(a.Positional), Keyword: kw}
}

// Keys returns the keyword names in sorted order.
func (a Args) Keys() []string {
	keys := lo.Keys(a.Keyword)
	slices.Sort(keys)
	return keys
}

// Arg returns positional argument i as V, or def if a has fewer arguments.
// A present argument of the wrong type is an error.
func Arg[V any](a Args, i int, def V) (V, error) {
	if i < 0 || i >= len(a.Positional) {
		return def, nil
	}
	v, ok := a.Positional[i].(V)
	if !ok {
		return lo.Empty[V](), fmt.Errorf("bgtask: argument %d is %T, want %T", i, a.Positional[i], def)
	}
	return v, nil
}

// Kwarg returns keyword argument key as V, or def if it is absent.
// A present argument of the wrong type is an error.
func Kwarg[V any](a Args, key string, def V) (V, error) {
	raw, ok := a.Keyword[key]
	if !ok {
		return def, nil
	}
	v, ok := raw.(V)
	if !ok {
		return lo.Empty[V](), fmt.Errorf("bgtask: keyword argument %q is %T, want %T", key, raw, def)
	}
	return v, nil
}

// FromSeq adapts an error-free sequence into a Generator.
func FromSeq[T any](seq iter.Seq[T]) Generator[T] {
	return func(yield func(T, error) bool) {
		for v := range seq {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Static returns a Factory that ignores its arguments and returns gen.
func Static[T any](gen Generator[T]) Factory[T] {
	return func(context.Context, Args) (Generator[T], error) {
		return gen, nil
	}
}
