package gate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/graphql-go/graphql"
)

// ExecutionContext carries the authenticated identity and request metadata
// into GraphQL field resolvers. It is populated by the GraphQL gate from
// the attributes the HTTP gate left on the request; the GraphQL layer never
// re-validates the token.
type ExecutionContext struct {
	UserID        int64
	Authenticated bool
	ClientIP      string
	UserAgent     string
}

type executionContextKey struct{}

// WithExecutionContext attaches the GraphQL execution context.
func WithExecutionContext(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey{}, ec)
}

// ExecutionContextFrom retrieves the GraphQL execution context. Field
// resolvers use this to read the authenticated identity.
func ExecutionContextFrom(ctx context.Context) (ExecutionContext, bool) {
	ec, ok := ctx.Value(executionContextKey{}).(ExecutionContext)
	return ec, ok
}

// GraphQLGate executes GraphQL requests with the authenticated identity
// copied into the execution context. It must be mounted behind the HTTP
// gate in the same middleware chain.
type GraphQLGate struct {
	schema graphql.Schema
	logger *slog.Logger
}

// GraphQLGateOption configures the GraphQLGate.
type GraphQLGateOption func(*GraphQLGate)

// WithGraphQLGateLogger sets the logger for the gate.
func WithGraphQLGateLogger(logger *slog.Logger) GraphQLGateOption {
	return func(g *GraphQLGate) { g.logger = logger }
}

// NewGraphQLGate creates a GraphQLGate over the given schema.
func NewGraphQLGate(schema graphql.Schema, opts ...GraphQLGateOption) *GraphQLGate {
	g := &GraphQLGate{
		schema: schema,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// ServeHTTP implements http.Handler.
func (g *GraphQLGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid GraphQL request body", http.StatusBadRequest)
		return
	}

	userID, _ := UserIDFromContext(ctx)
	ec := ExecutionContext{
		UserID:        userID,
		Authenticated: IsAuthenticated(ctx),
		ClientIP:      ClientIPFromContext(ctx),
		UserAgent:     UserAgentFromContext(ctx),
	}

	g.logger.Info("graphql request",
		"request_id", middleware.GetReqID(ctx),
		"authenticated", ec.Authenticated,
		"user_id", ec.UserID,
		"operation", req.OperationName,
	)

	result := graphql.Do(graphql.Params{
		Schema:         g.schema,
		RequestString:  req.Query,
		OperationName:  req.OperationName,
		VariableValues: req.Variables,
		Context:        WithExecutionContext(ctx, ec),
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// NewSchema builds the query schema exposed at /graphql. The viewer field
// demonstrates field-level consumption of the execution context; services
// embedding this gate register their own domain fields alongside it.
func NewSchema() (graphql.Schema, error) {
	viewerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Viewer",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					ec, _ := ExecutionContextFrom(p.Context)
					return ec.UserID, nil
				},
			},
			"clientIp": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					ec, _ := ExecutionContextFrom(p.Context)
					return ec.ClientIP, nil
				},
			},
			"userAgent": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					ec, _ := ExecutionContextFrom(p.Context)
					return ec.UserAgent, nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"viewer": &graphql.Field{
				Type: viewerType,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					ec, ok := ExecutionContextFrom(p.Context)
					if !ok || !ec.Authenticated {
						return nil, nil
					}
					return ec, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}
