// Command qa-admin runs one-off RBAC maintenance tasks against the configured
// storage backend: schema migration, seeding, the expiry sweep, bootstrapping
// role assignments and identifier checks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MertBaran/QA-API-sub001/pkg/config"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	_ "github.com/MertBaran/QA-API-sub001/pkg/datasource/mongo"
	_ "github.com/MertBaran/QA-API-sub001/pkg/datasource/postgres"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/observability"
	"github.com/MertBaran/QA-API-sub001/pkg/rbac"
)

const usage = `usage: qa-admin <command> [flags]

commands:
  migrate                         create collections, tables and indexes
  seed -file <path>               apply a seed file idempotently
  sweep                           deactivate expired role assignments
  assign -user <id> -role <name>  assign a role to a user
  check-id <id>                   report which backends accept an id
`

var errUsage = errors.New("invalid usage")

func main() {
	logger := setupLogger(os.Getenv("QA_LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		logger.WithError(err).Fatal("command failed")
	}
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func run(ctx context.Context, args []string, out io.Writer, logger *logrus.Logger) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "check-id":
		return checkID(rest, out)
	case "migrate", "seed", "sweep", "assign":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	backend, err := datasource.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := backend.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("failed to close backend")
		}
	}()

	log := logger.WithField("backend", backend.Kind())
	switch cmd {
	case "migrate":
		if err := backend.Migrate(ctx); err != nil {
			return err
		}
		log.Info("migration complete")
		return nil
	case "seed":
		return seed(ctx, backend, rest, log)
	case "sweep":
		return sweep(ctx, backend, log)
	default:
		return assign(ctx, backend, rest, log)
	}
}

func services(backend datasource.Backend) (*rbac.PermissionStore, *rbac.RoleStore, *rbac.UserRoleStore) {
	// The admin tool runs without a cache; qa-api instances pick up changes
	// when their entries expire.
	opts := []rbac.Option{rbac.WithLogger(observability.NewLogger(observability.WarnLevel, os.Stderr))}
	permissions := rbac.NewPermissionStore(backend.Permissions(), opts...)
	roles := rbac.NewRoleStore(backend.Roles(), backend.Permissions(), opts...)
	resolver := rbac.NewResolver(backend.Assignments(), backend.Roles(), backend.Permissions(), opts...)
	users := rbac.NewUserRoleStore(backend.Assignments(), roles, resolver, backend.IDs(), opts...)
	return permissions, roles, users
}

func seed(ctx context.Context, backend datasource.Backend, args []string, log *logrus.Entry) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("file", "seeds/rbac.yaml", "Seed file to apply")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	seedFile, err := rbac.LoadSeedFile(*file)
	if err != nil {
		return err
	}

	permissions, roles, _ := services(backend)
	result, err := rbac.NewSeeder(permissions, roles).Apply(ctx, seedFile)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"file":                *file,
		"permissions_created": result.PermissionsCreated,
		"roles_created":       result.RolesCreated,
		"memberships_added":   result.MembershipsAdded,
	}).Info("seed applied")
	return nil
}

func sweep(ctx context.Context, backend datasource.Backend, log *logrus.Entry) error {
	_, _, users := services(backend)
	n, err := users.DeactivateExpiredRoles(ctx)
	if err != nil {
		return err
	}
	log.WithField("deactivated", n).Info("expiry sweep complete")
	return nil
}

func assign(ctx context.Context, backend datasource.Backend, args []string, log *logrus.Entry) error {
	fs := flag.NewFlagSet("assign", flag.ContinueOnError)
	userID := fs.String("user", "", "User id in the backend's id scheme")
	roleName := fs.String("role", "", "Role name")
	expires := fs.Duration("expires", 0, "Optional lifetime of the assignment")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *userID == "" || *roleName == "" {
		return fmt.Errorf("%w: -user and -role are required", errUsage)
	}

	_, roles, users := services(backend)
	role, err := roles.FindByName(ctx, *roleName)
	if err != nil {
		return err
	}

	var opts rbac.AssignOptions
	if *expires > 0 {
		at := time.Now().Add(*expires)
		opts.ExpiresAt = &at
	}
	a, err := users.AssignRoleToUser(ctx, *userID, role.ID, opts)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"assignment_id": a.ID,
		"user_id":       a.UserID,
		"role":          role.Name,
	}).Info("role assigned")
	return nil
}

func checkID(args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: check-id takes exactly one id", errUsage)
	}
	id := args[0]

	valid := false
	for _, kind := range []ids.Kind{ids.KindDocument, ids.KindRelational} {
		ok := ids.ValidForBackend(id, kind)
		valid = valid || ok
		fmt.Fprintf(out, "%-8s %t\n", kind, ok)
	}
	if !valid {
		return fmt.Errorf("%q is not a valid id for any backend", id)
	}
	return nil
}
