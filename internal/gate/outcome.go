package gate

import (
	"context"

	"github.com/clanhall/authcore/internal/token"
)

// Outcome is the explicit result of evaluating a candidate token. It is a
// value, not an exception: transport adapters inspect it and translate it
// into protocol-appropriate accept/reject behavior.
type Outcome struct {
	Authenticated bool
	UserID        int64
	// Reason explains a rejection for logs; it is never sent to clients.
	Reason string
}

// Evaluate runs the shared gate contract: validate the candidate token and
// resolve a concrete user id. An empty token, a failed validation and an
// unresolvable identity all yield an unauthenticated outcome with a reason.
func Evaluate(ctx context.Context, validator *token.Validator, candidate string) Outcome {
	if candidate == "" {
		return Outcome{Reason: "no token presented"}
	}

	claims, err := validator.Validate(ctx, candidate)
	if err != nil {
		return Outcome{Reason: err.Error()}
	}

	userID, ok := validator.ExtractUserID(ctx, claims)
	if !ok {
		return Outcome{Reason: "token valid but identity unresolved"}
	}

	return Outcome{Authenticated: true, UserID: userID}
}
