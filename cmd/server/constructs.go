package main

import (
	"context"
	"net/http"
	"time"

	"github.com/constructhq/construct/internal/audit"
	"github.com/constructhq/construct/internal/authz"
	"github.com/constructhq/construct/internal/construct"
	"github.com/constructhq/construct/internal/database"
	"github.com/constructhq/construct/internal/email"
	"github.com/constructhq/construct/internal/events"
	"github.com/constructhq/construct/internal/router"
	"github.com/constructhq/construct/internal/schema"
	"github.com/constructhq/construct/internal/server"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// CreateUserRequest is the body for POST /users.
type CreateUserRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email"`
}

// User is the createUser output shape.
type User struct {
	ID        string    `json:"id" validate:"required,uuid"`
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	CreatedAt time.Time `json:"createdAt"`
}

// WelcomeEmailPayload is what the user.created subscriber consumes.
type WelcomeEmailPayload struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"required"`
}

// mountConstructs declares and mounts the runtime's constructs. The three
// kinds of shared collaborators (postgres, mailer) are service descriptors:
// the resolver registers each at most once per process and hands the same
// instance to every construct that names it.
func mountConstructs(s *server.Server, r *router.Router) error {
	pg := construct.Service{
		Name: database.ServiceName,
		Register: func(ctx context.Context) (any, error) {
			return s.AuditStore, nil
		},
	}

	mailer := construct.Service{
		Name: "email",
		Register: func(ctx context.Context) (any, error) {
			return email.NewClient(s.Config, s.Logger), nil
		},
	}

	builders := []*construct.Builder{
		pingConstruct(s),
		createUserConstruct(s, pg),
		welcomeEmailConstruct(s, mailer),
		auditDigestConstruct(s, pg),
	}

	for _, b := range builders {
		sealed, err := b.Seal()
		if err != nil {
			return err
		}
		if err := r.Mount(sealed); err != nil {
			return err
		}

		s.Logger.Info().
			Str("kind", string(sealed.Kind())).
			Str("route", sealed.Route()).
			Str("tier", string(sealed.Tier())).
			Msg("construct mounted")
	}

	return nil
}

// pingConstruct is a minimal-tier construct: no collaborators at all, so
// code generation may give it the bare dispatch path.
func pingConstruct(s *server.Server) *construct.Builder {
	return construct.New().
		Route(http.MethodGet, "/ping").
		Logger(*s.Logger).
		Handle(func(c *construct.Ctx) (any, error) {
			return map[string]string{"status": "ok"}, nil
		})
}

// createUserConstruct is a full-tier construct: validated input and output,
// a database, declarative audits sharing the handler's transaction, an
// event publication, and a rate limit.
func createUserConstruct(s *server.Server, pg construct.Service) *construct.Builder {
	b := construct.New().
		Route(http.MethodPost, "/users").
		Body(schema.Struct[CreateUserRequest]()).
		Output(schema.Struct[User]()).
		Database(pg).
		AuditStorage(pg).
		Actor(authz.Actor()).
		Audit(audit.Rule{
			Type: "user.created",
			Payload: func(out any) any {
				u := out.(*User)
				return map[string]any{"userId": u.ID, "email": u.Email}
			},
			EntityID: func(out any) string {
				return out.(*User).ID
			},
		}).
		Publish(events.Rule{
			Topic: "user.created",
			Payload: func(out any) any {
				u := out.(*User)
				return WelcomeEmailPayload{UserID: u.ID, Email: u.Email, Name: u.Name}
			},
		}).
		RateLimit(construct.RateLimitPolicy{RPS: 20, Burst: 40}).
		Status(http.StatusCreated).
		Logger(*s.Logger).
		Handle(func(c *construct.Ctx) (any, error) {
			req := c.Body.(*CreateUserRequest)

			if c.DB == nil {
				return nil, errors.New("transaction unavailable")
			}
			tx, ok := c.DB.Underlying().(pgx.Tx)
			if !ok {
				return nil, errors.New("unexpected transaction type")
			}

			user := User{
				ID:        uuid.New().String(),
				Name:      req.Name,
				Email:     req.Email,
				CreatedAt: time.Now().UTC(),
			}

			_, err := tx.Exec(c,
				`INSERT INTO users (id, name, email, created_at) VALUES ($1, $2, $3, $4)`,
				user.ID, user.Name, user.Email, user.CreatedAt,
			)
			if err != nil {
				return nil, err
			}

			return user, nil
		})

	// Only guard the route when a Clerk key is configured; local setups
	// stay open.
	if s.Config.Auth.SecretKey != "" {
		b.Authorize(authz.NewClerkAuthorizer(s.Config.Auth.SecretKey))
	}

	return b
}

// welcomeEmailConstruct consumes user.created events and sends the welcome
// email. The event payload goes through the body schema like any other
// invocation input.
func welcomeEmailConstruct(s *server.Server, mailer construct.Service) *construct.Builder {
	return construct.New().
		Topic("user.created").
		Body(schema.Struct[WelcomeEmailPayload]()).
		Use(mailer).
		Logger(*s.Logger).
		Handle(func(c *construct.Ctx) (any, error) {
			p := c.Body.(*WelcomeEmailPayload)

			client, ok := c.Service("email").(*email.Client)
			if !ok {
				return nil, errors.New("email service unavailable")
			}

			if err := client.SendWelcomeEmail(p.Email, p.Name); err != nil {
				return nil, err
			}
			return map[string]string{"sent": p.Email}, nil
		})
}

// auditDigestConstruct runs hourly and logs how many audit records landed
// in the last hour.
func auditDigestConstruct(s *server.Server, pg construct.Service) *construct.Builder {
	return construct.New().
		Schedule("audit-digest", "0 * * * *").
		Use(pg).
		Logger(*s.Logger).
		Handle(func(c *construct.Ctx) (any, error) {
			store, ok := c.Service(database.ServiceName).(*database.AuditStore)
			if !ok {
				return nil, errors.New("audit store unavailable")
			}

			records, err := store.Query(c, audit.Filter{
				Since: time.Now().Add(-time.Hour),
			})
			if err != nil {
				return nil, err
			}

			c.Logger.Info().Int("records", len(records)).Msg("hourly audit digest")
			return map[string]int{"records": len(records)}, nil
		})
}
