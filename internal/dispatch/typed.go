package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// Decode converts a payload to T. A string T receives the payload as is;
// any other T is decoded from JSON.
func Decode[T any](r Result) (T, error) {
	var v T
	if s, ok := any(&v).(*string); ok {
		*s = r.Payload
		return v, nil
	}
	if err := json.Unmarshal([]byte(r.Payload), &v); err != nil {
		return v, &Failure{
			Kind:       KindParse,
			StatusCode: r.StatusCode,
			Body:       r.Payload,
			Err:        fmt.Errorf("decoding result as %T: %w", v, err),
		}
	}
	return v, nil
}

// DoAs is Do followed by Decode.
func DoAs[T any](ctx context.Context, d *Dispatcher, spec RequestSpec) (T, Result, error) {
	var zero T
	r, err := d.Do(ctx, spec)
	if err != nil {
		return zero, r, err
	}
	v, err := Decode[T](r)
	if err != nil {
		return zero, r, err
	}
	return v, r, nil
}

// TypedHandler receives a decoded asynchronous result.
type TypedHandler[T any] struct {
	OnSuccess func(v T, r Result)
	OnFailure func(*Failure)
}

// DispatchAs is Dispatch with the payload decoded to T before OnSuccess.
// A decode error is delivered to OnFailure as a KindParse failure.
func DispatchAs[T any](ctx context.Context, d *Dispatcher, spec RequestSpec, h TypedHandler[T]) *Call {
	return d.Dispatch(ctx, spec, Handler{
		OnSuccess: func(r Result) {
			v, err := Decode[T](r)
			if err != nil {
				if h.OnFailure != nil {
					f, _ := AsFailure(err)
					h.OnFailure(f)
				}
				return
			}
			if h.OnSuccess != nil {
				h.OnSuccess(v, r)
			}
		},
		OnFailure: h.OnFailure,
	})
}
