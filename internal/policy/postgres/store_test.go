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

package postgres

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-logr/zapr"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	storepg "github.com/codeops-vault/vault/internal/store/postgres"
	"github.com/codeops-vault/vault/internal/policy"
)

var testConnStr string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("policy_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	testConnStr, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}

	os.Exit(code)
}

func replaceDBName(connStr, newDB string) string {
	qIdx := len(connStr)
	for i, c := range connStr {
		if c == '?' {
			qIdx = i
			break
		}
	}
	slashIdx := 0
	for i := qIdx - 1; i >= 0; i-- {
		if connStr[i] == '/' {
			slashIdx = i
			break
		}
	}
	return connStr[:slashIdx+1] + newDB + connStr[qIdx:]
}

// freshStore creates a migrated, empty database and returns a Store over it.
func freshStore(t *testing.T) *Store {
	t.Helper()

	dbName := fmt.Sprintf("test_%d", time.Now().UnixNano())

	admin, err := pgxpool.New(context.Background(), testConnStr)
	require.NoError(t, err)
	_, err = admin.Exec(context.Background(), fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)
	admin.Close()

	connStr := replaceDBName(testConnStr, dbName)

	log := zapr.NewLogger(zap.NewExample())
	migrator, err := storepg.NewMigrator(connStr, log)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	pool, err := pgxpool.New(context.Background(), connStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		admin, err := pgxpool.New(context.Background(), testConnStr)
		if err == nil {
			_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP DATABASE %s WITH (FORCE)", dbName))
			admin.Close()
		}
	})

	return New(pool)
}

func TestStore_CreateGetUpdateDeletePolicy(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	store := freshStore(t)
	ctx := context.Background()

	p := &policy.Policy{
		Team:        "team-a",
		Name:        "db-read",
		PathPattern: "/db/*",
		Permissions: []policy.Permission{policy.PermRead},
		Active:      true,
	}
	created, err := store.CreatePolicy(ctx, p)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := store.GetPolicy(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Name, got.Name)
	require.Equal(t, []policy.Permission{policy.PermRead}, got.Permissions)

	got.Active = false
	require.NoError(t, store.UpdatePolicy(ctx, got))

	reloaded, err := store.GetPolicy(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, reloaded.Active)

	require.NoError(t, store.DeletePolicy(ctx, created.ID))
	_, err = store.GetPolicy(ctx, created.ID)
	require.Error(t, err)
}

func TestStore_DuplicatePolicyNameRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	store := freshStore(t)
	ctx := context.Background()

	p := &policy.Policy{Team: "team-a", Name: "dup", PathPattern: "/db/*", Permissions: []policy.Permission{policy.PermRead}, Active: true}
	_, err := store.CreatePolicy(ctx, p)
	require.NoError(t, err)

	_, err = store.CreatePolicy(ctx, p)
	require.Error(t, err)
}

func TestStore_ActivePoliciesFor(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	store := freshStore(t)
	ctx := context.Background()

	p, err := store.CreatePolicy(ctx, &policy.Policy{
		Team: "team-a", Name: "svc-read", PathPattern: "/db/*",
		Permissions: []policy.Permission{policy.PermRead}, Active: true,
	})
	require.NoError(t, err)

	_, err = store.Bind(ctx, &policy.Binding{PolicyID: p.ID, BindingType: policy.BindingService, Target: "payments-svc"})
	require.NoError(t, err)

	found, err := store.ActivePoliciesFor(ctx, "team-a", policy.BindingService, []string{"payments-svc"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, p.ID, found[0].ID)

	none, err := store.ActivePoliciesFor(ctx, "team-a", policy.BindingService, []string{"other-svc"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestStore_UnbindRemovesBinding(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	store := freshStore(t)
	ctx := context.Background()

	p, err := store.CreatePolicy(ctx, &policy.Policy{
		Team: "team-a", Name: "to-unbind", PathPattern: "/db/*",
		Permissions: []policy.Permission{policy.PermRead}, Active: true,
	})
	require.NoError(t, err)

	b, err := store.Bind(ctx, &policy.Binding{PolicyID: p.ID, BindingType: policy.BindingUser, Target: "alice"})
	require.NoError(t, err)

	require.NoError(t, store.Unbind(ctx, b.ID))

	bindings, err := store.ListBindings(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, bindings)
}
