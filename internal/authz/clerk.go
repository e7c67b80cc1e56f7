// Package authz provides the bundled Clerk-backed authorizer.
//
// Constructs declare authorization as data; this package supplies a ready
// construct.Authorizer that verifies Clerk bearer tokens. Constructs are
// free to bring their own authorizer instead.
package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/pkg/errors"

	"github.com/constructhq/construct/internal/construct"
)

// NewClerkAuthorizer builds an authorizer that derives the session from the
// Authorization bearer token and admits any valid session.
//
// Session errors and negative decisions are reported to the caller as a
// generic unauthorized failure by the pipeline; detail stays in logs.
func NewClerkAuthorizer(secretKey string) construct.Authorizer {
	clerk.SetKey(secretKey)

	return construct.Authorizer{
		Session: func(ctx context.Context, in construct.AuthInput) (any, error) {
			token := bearerToken(in.Headers)
			if token == "" {
				return nil, errors.New("missing bearer token")
			}

			claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
			if err != nil {
				return nil, errors.Wrap(err, "verifying session token")
			}
			return claims, nil
		},

		Authorize: func(ctx context.Context, session any) (bool, error) {
			claims, ok := session.(*clerk.SessionClaims)
			return ok && claims.Subject != "", nil
		},
	}
}

// Actor attributes audit records to the authenticated Clerk subject, or
// "anonymous" when the construct has no authorizer.
func Actor() construct.ActorFunc {
	return func(ctx context.Context, session any, headers http.Header) string {
		if claims, ok := session.(*clerk.SessionClaims); ok && claims.Subject != "" {
			return claims.Subject
		}
		return "anonymous"
	}
}

func bearerToken(headers http.Header) string {
	auth := headers.Get("Authorization")
	if auth == "" {
		return ""
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth {
		return ""
	}
	return strings.TrimSpace(token)
}
