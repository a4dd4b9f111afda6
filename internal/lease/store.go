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

package lease

import (
	"context"
	"time"
)

// Store is the persistence contract the Service depends on. A PostgreSQL
// implementation lives in internal/lease/postgres.
type Store interface {
	CreateLease(ctx context.Context, l *Lease) (*Lease, error)
	GetLease(ctx context.Context, leaseID string) (*Lease, error)
	UpdateLease(ctx context.Context, l *Lease) error
	ListActiveBySecret(ctx context.Context, secretID string) ([]*Lease, error)
	ListExpired(ctx context.Context, now time.Time) ([]*Lease, error)
}
