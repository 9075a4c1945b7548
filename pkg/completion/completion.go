package completion

import "context"

// Fn answers a single prompt on behalf of an evaluation harness.
type Fn interface {
	Complete(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Options carries the generation parameters a harness passes alongside a prompt.
// Implementations are free to ignore any of them.
type Options struct {
	Temperature *float64
	MaxTokens   int
	Stop        []string
	Extra       map[string]any
}

type Option func(*Options)

func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = &t }
}

func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

func WithStop(stop ...string) Option {
	return func(o *Options) { o.Stop = append(o.Stop, stop...) }
}

// WithExtra records a harness parameter that has no dedicated field.
func WithExtra(key string, value any) Option {
	return func(o *Options) {
		if o.Extra == nil {
			o.Extra = make(map[string]any)
		}
		o.Extra[key] = value
	}
}

// Apply folds opts into an Options value.
func Apply(opts ...Option) Options {
	var out Options
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// FnFunc adapts a plain function to Fn.
type FnFunc func(ctx context.Context, prompt string, opts ...Option) (string, error)

func (f FnFunc) Complete(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return f(ctx, prompt, opts...)
}

// Static returns an Fn that always answers with answer.
func Static(answer string) Fn {
	return FnFunc(func(ctx context.Context, _ string, _ ...Option) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return answer, nil
	})
}
