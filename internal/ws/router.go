package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, body json.RawMessage) error

type route struct {
	handle  rawHandler
	failure string // generic text sent to the client for unexpected errors
}

// Router keeps a map[event]handler, à‑la gin.Engine.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]route
	validate *validator.Validate
}

func NewRouter() *Router {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Router{handlers: make(map[string]route), validate: v}
}

// ValidationError is reported to the client verbatim.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// dispatchError carries the client-facing text of a failed handler.
type dispatchError struct {
	public string
	cause  error
}

func (e *dispatchError) Error() string { return e.cause.Error() }
func (e *dispatchError) Unwrap() error { return e.cause }

// Register binds an event to a strongly‑typed handler. Struct payloads are
// checked against their validate tags before h runs.
func Register[Req any](
	r *Router,
	event string,
	failure string,
	h func(ctx context.Context, c *ConnContext, req Req) error,
) {
	if event == "" {
		panic("ws router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = route{
		failure: failure,
		handle: func(ctx context.Context, c *ConnContext, body json.RawMessage) error {
			var req Req
			if len(body) > 0 {
				if err := json.Unmarshal(body, &req); err != nil {
					return invalid("invalid payload for %s", event)
				}
			}
			if err := r.check(req); err != nil {
				return err
			}
			return h(ctx, c, req)
		},
	}
}

func (r *Router) check(req any) error {
	if reflect.Indirect(reflect.ValueOf(req)).Kind() != reflect.Struct {
		return nil
	}
	err := r.validate.Struct(req)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return err
	}
	fe := ves[0]
	switch fe.Tag() {
	case "required":
		return invalid("%s is required", fe.Field())
	case "min":
		return invalid("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return invalid("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return invalid("%s is invalid", fe.Field())
	}
}

// dispatch is called by the server's reader loop. Any returned error is a
// *dispatchError whose public text is safe to send to the client.
func (r *Router) dispatch(ctx context.Context, c *ConnContext, env Envelope) (err error) {
	r.mu.RLock()
	rt, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		ve := invalid("unknown event %q", env.Event)
		return &dispatchError{public: ve.Error(), cause: ve}
	}

	defer func() {
		if p := recover(); p != nil {
			err = &dispatchError{public: rt.failure, cause: fmt.Errorf("panic in %s: %v", env.Event, p)}
		}
	}()

	if err := rt.handle(ctx, c, env.Body); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return &dispatchError{public: ve.msg, cause: err}
		}
		return &dispatchError{public: rt.failure, cause: err}
	}
	return nil
}

func isValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
