/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package policy implements the vault's access-policy evaluator (C6):
// path-glob matching plus deny-overrides-allow evaluation over bindings
// attached to users, teams, and services.
package policy

import "time"

// Permission is one of the operations an Access Policy can grant or deny.
type Permission string

const (
	PermRead   Permission = "READ"
	PermWrite  Permission = "WRITE"
	PermDelete Permission = "DELETE"
	PermList   Permission = "LIST"
	PermRotate Permission = "ROTATE"
)

// BindingType names what kind of target a Policy Binding attaches to.
type BindingType string

const (
	BindingUser    BindingType = "USER"
	BindingTeam    BindingType = "TEAM"
	BindingService BindingType = "SERVICE"
)

// Policy is a named rule set within a team.
type Policy struct {
	ID          string
	Team        string
	Name        string
	PathPattern string
	Permissions []Permission
	Deny        bool
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission reports whether p grants/denies perm.
func (p *Policy) HasPermission(perm Permission) bool {
	for _, g := range p.Permissions {
		if g == perm {
			return true
		}
	}
	return false
}

// Binding attaches one Policy to one target.
type Binding struct {
	ID          string
	PolicyID    string
	BindingType BindingType
	Target      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Decision is the result of an evaluation.
type Decision struct {
	Allowed bool
	// Policy is the deciding rule, nil for a DEFAULT-DENIED decision with
	// no matching policy at all.
	Policy *Policy
	// DefaultDenied is true when no policy matched at all (as opposed to
	// an explicit deny).
	DefaultDenied bool
}
