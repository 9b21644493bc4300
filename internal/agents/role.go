package agents

import (
	"context"
	"fmt"
)

// Role is one analysis role: it turns a prompt into prose.
type Role interface {
	Name() string
	Run(ctx context.Context, prompt string) (string, error)
}

type funcRole struct {
	name string
	fn   func(ctx context.Context, prompt string) (string, error)
}

// NewRoleFunc adapts fn to a Role.
func NewRoleFunc(name string, fn func(ctx context.Context, prompt string) (string, error)) Role {
	return &funcRole{name: name, fn: fn}
}

func (r *funcRole) Name() string { return r.name }

func (r *funcRole) Run(ctx context.Context, prompt string) (string, error) {
	return r.fn(ctx, prompt)
}

// Roles is the set of roles the report pipeline invokes.
type Roles struct {
	MarketAnalyst     Role
	CompanyResearcher Role
	Strategist        Role
	TeamLead          Role
}

func (r Roles) Validate() error {
	var missing []string
	if r.MarketAnalyst == nil {
		missing = append(missing, "market analyst")
	}
	if r.CompanyResearcher == nil {
		missing = append(missing, "company researcher")
	}
	if r.Strategist == nil {
		missing = append(missing, "strategist")
	}
	if r.TeamLead == nil {
		missing = append(missing, "team lead")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing roles: %v", missing)
	}
	return nil
}

// RoleError is a failed role invocation. It aborts the report.
type RoleError struct {
	Stage string
	Role  string
	Err   error
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("%s stage: role %s: %v", e.Stage, e.Role, e.Err)
}

func (e *RoleError) Unwrap() error { return e.Err }

// Invoke runs role and wraps any failure in a RoleError.
func Invoke(ctx context.Context, stage string, role Role, prompt string) (string, error) {
	out, err := role.Run(ctx, prompt)
	if err != nil {
		return "", &RoleError{Stage: stage, Role: role.Name(), Err: err}
	}
	return out, nil
}
