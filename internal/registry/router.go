package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/logger"
)

// Session is an open connection to one registry.
type Session interface {
	Tools(ctx context.Context) (*ToolSet, error)
	Close() error
}

// DialFunc opens a Session with a stage's registry.
type DialFunc func(ctx context.Context, stage chat.Stage, ep Endpoint) (Session, error)

// DialMCP is the production DialFunc.
func DialMCP(ctx context.Context, stage chat.Stage, ep Endpoint) (Session, error) {
	return Dial(ctx, stage, ep)
}

// RegistryError reports that a stage's registry could not be reached or
// refused to list its tools.
type RegistryError struct {
	Stage chat.Stage
	Err   error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s tool registry: %v", e.Stage, e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// Selection is the ToolSet chosen for one request. Close releases the
// registry session behind it.
type Selection struct {
	Tools   *ToolSet
	session Session
}

// Close releases the registry connection.
func (s *Selection) Close() error {
	if s == nil || s.session == nil {
		return nil
	}
	return s.session.Close()
}

// Router picks the tool registry for a request's stage.
type Router struct {
	endpoints map[chat.Stage]Endpoint
	dial      DialFunc
}

// NewRouter returns a Router over one endpoint per stage. A nil dial uses DialMCP.
func NewRouter(prod, test Endpoint, dial DialFunc) *Router {
	if dial == nil {
		dial = DialMCP
	}
	return &Router{
		endpoints: map[chat.Stage]Endpoint{
			chat.StageProd: prod,
			chat.StageTest: test,
		},
		dial: dial,
	}
}

type stageResult struct {
	session Session
	tools   *ToolSet
}

// Select connects to every stage's registry concurrently and returns the
// tools of the requested stage only. If any registry fails the whole
// selection fails and the remaining connections are cancelled and closed;
// there is no fallback to another stage's tools.
func (r *Router) Select(ctx context.Context, stage chat.Stage) (*Selection, error) {
	if _, ok := r.endpoints[stage]; !ok {
		return nil, fmt.Errorf("%w %q", chat.ErrUnknownStage, stage)
	}

	results := make([]stageResult, len(chat.Stages))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range chat.Stages {
		g.Go(func() error {
			sess, err := r.dial(gctx, st, r.endpoints[st])
			if err != nil {
				return &RegistryError{Stage: st, Err: err}
			}
			results[i].session = sess

			tools, err := sess.Tools(gctx)
			if err != nil {
				return &RegistryError{Stage: st, Err: err}
			}
			if tools.Stage() != st {
				return &RegistryError{Stage: st, Err: errors.New("registry returned tools for another stage")}
			}
			results[i].tools = tools
			return nil
		})
	}

	err := g.Wait()

	var selected stageResult
	for i, st := range chat.Stages {
		res := results[i]
		if err == nil && st == stage {
			selected = res
			continue
		}
		if res.session != nil {
			if cerr := res.session.Close(); cerr != nil {
				logger.L(ctx).Debug("closing registry session", zap.String("stage", string(st)), zap.Error(cerr))
			}
		}
	}
	if err != nil {
		return nil, err
	}

	logger.L(ctx).Debug("selected tool registry",
		zap.String("stage", string(stage)),
		zap.Int("tools", selected.tools.Len()))

	return &Selection{Tools: selected.tools, session: selected.session}, nil
}
