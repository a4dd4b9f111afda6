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

package api

import (
	"context"

	"github.com/codeops-vault/vault/internal/audit"
)

// recordAudit logs e as a success or failure depending on opErr; the sink
// reads client IP and correlation id ambiently from the logctx values that
// requestContextMiddleware places in ctx.
// Handlers call this after every mutating operation, per C5's contract that
// every mutating operation is audited regardless of outcome. sink is the
// concrete *audit.Sink type, not an interface: a nil sink must compare
// equal to nil here, which a concrete-pointer-in-interface value would not.
func recordAudit(ctx context.Context, sink *audit.Sink, e audit.Entry, opErr error) {
	if sink == nil {
		return
	}
	if opErr != nil {
		sink.LogFailure(ctx, e, opErr)
		return
	}
	sink.LogSuccess(ctx, e)
}

func actorFromCtx(ctx context.Context) (user, team string) {
	p, ok := principalFromCtx(ctx)
	if !ok {
		return "", ""
	}
	return p.UserID, p.TeamID
}
