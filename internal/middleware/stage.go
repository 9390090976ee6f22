package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/FranksOps/jobscout/pkg/useragent"
)

// Stage names accepted in configuration.
const (
	StageUserAgent = "useragent"
	StageProxy     = "proxy"
)

// DefaultStages is the stage order used when none is configured.
var DefaultStages = []string{StageUserAgent, StageProxy}

// Stage prepares an attempt before it is sent.
type Stage interface {
	Name() string
	Prepare(ctx context.Context, a Attempt) Attempt
}

// Chain runs stages in order.
type Chain struct {
	stages []Stage
}

// NewChain builds a chain from configured stage names. available maps a
// name to its stage; a name with a nil stage is skipped (a disabled stage),
// an unknown name is an error.
func NewChain(names []string, available map[string]Stage) (*Chain, error) {
	if len(names) == 0 {
		names = DefaultStages
	}
	c := &Chain{}
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		st, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("middleware: unknown stage %q", raw)
		}
		if seen[name] {
			return nil, fmt.Errorf("middleware: stage %q listed twice", raw)
		}
		seen[name] = true
		if st != nil {
			c.stages = append(c.stages, st)
		}
	}
	return c, nil
}

// Names returns the active stage names in order.
func (c *Chain) Names() []string {
	out := make([]string, 0, len(c.stages))
	for _, s := range c.stages {
		out = append(out, s.Name())
	}
	return out
}

// Prepare passes a through every stage.
func (c *Chain) Prepare(ctx context.Context, a Attempt) Attempt {
	for _, s := range c.stages {
		a = s.Prepare(ctx, a)
	}
	return a
}

// UserAgentStage sets a random User-Agent on attempts that have none.
type UserAgentStage struct {
	Pool *useragent.Pool
}

func (s *UserAgentStage) Name() string { return StageUserAgent }

func (s *UserAgentStage) Prepare(_ context.Context, a Attempt) Attempt {
	if a.Header.Get("User-Agent") != "" {
		return a
	}
	a.Header = a.Header.Clone()
	if a.Header == nil {
		a.Header = http.Header{}
	}
	s.Pool.Assign(a.Header)
	return a
}
