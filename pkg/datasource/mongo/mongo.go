// Package mongo implements the document backend on MongoDB. Identifiers are
// ObjectIDs, a role embeds its permission set as an ObjectID array and the
// one-active-assignment rule is a partial unique index on user_roles.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

const (
	permissionsCollection = "permissions"
	rolesCollection       = "roles"
	assignmentsCollection = "user_roles"
	defaultDatabase       = "qa"
)

func init() {
	datasource.Register(ids.KindDocument, Open)
}

// Backend is the MongoDB datasource.Backend.
type Backend struct {
	client      *mongo.Client
	db          *mongo.Database
	permissions *collection[model.Permission, permissionDoc]
	roles       *roleCollection
	assignments *assignmentCollection
}

// Open connects using cfg and returns the backend.
func Open(ctx context.Context, cfg datasource.Config) (datasource.Backend, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)
	if cfg.MaxConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.MinConns))
	}
	if cfg.ConnMaxLifetime > 0 {
		opts.SetMaxConnIdleTime(cfg.ConnMaxLifetime)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = defaultDatabase
	}
	return New(client, client.Database(database)), nil
}

// New builds a backend over an already connected client.
func New(client *mongo.Client, db *mongo.Database) *Backend {
	return newBackend(client, db, time.Now)
}

func newBackend(client *mongo.Client, db *mongo.Database, now func() time.Time) *Backend {
	return &Backend{
		client: client,
		db:     db,
		permissions: newCollection(db.Collection(permissionsCollection), "permission", now,
			encodePermission, decodePermission),
		roles: &roleCollection{newCollection(db.Collection(rolesCollection), "role", now,
			encodeRole, decodeRole)},
		assignments: &assignmentCollection{newCollection(db.Collection(assignmentsCollection), "assignment", now,
			encodeAssignment, decodeAssignment)},
	}
}

func (b *Backend) Kind() ids.Kind  { return ids.KindDocument }
func (b *Backend) IDs() ids.Scheme { return ids.ObjectIDScheme{} }

func (b *Backend) Permissions() datasource.DataSource[model.Permission] { return b.permissions }
func (b *Backend) Roles() datasource.RoleSource                         { return b.roles }
func (b *Backend) Assignments() datasource.AssignmentSource             { return b.assignments }

// Migrate creates the indexes backing the uniqueness rules and the common
// lookups. Index creation is idempotent.
func (b *Backend) Migrate(ctx context.Context) error {
	for name, models := range indexes() {
		if _, err := b.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		permissionsCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_name")},
			{Keys: bson.D{{Key: "resource", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		rolesCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_name")},
			{Keys: bson.D{{Key: "isActive", Value: 1}}},
		},
		assignmentsCollection: {
			{
				Keys: bson.D{{Key: "userId", Value: 1}, {Key: "roleId", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("uniq_active_user_role").
					SetPartialFilterExpression(bson.D{{Key: "isActive", Value: true}}),
			},
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "roleId", Value: 1}}},
			{
				Keys:    bson.D{{Key: "expiresAt", Value: 1}},
				Options: options.Index().SetPartialFilterExpression(bson.D{{Key: "isActive", Value: true}}),
			},
		},
	}
}

func (b *Backend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx, readpref.Primary()); err != nil {
		return classify("ping", "database", err)
	}
	return nil
}

func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

type roleCollection struct {
	*collection[model.Role, roleDoc]
}

func (c *roleCollection) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	return c.mutate(ctx, "add permissions", roleID, permissionIDs, func(oids interface{}) bson.E {
		return bson.E{Key: "$addToSet", Value: bson.M{model.FieldPermissions: bson.M{"$each": oids}}}
	})
}

func (c *roleCollection) RemovePermissions(ctx context.Context, roleID string, permissionIDs []string) (model.Role, error) {
	return c.mutate(ctx, "remove permissions", roleID, permissionIDs, func(oids interface{}) bson.E {
		return bson.E{Key: "$pull", Value: bson.M{model.FieldPermissions: bson.M{"$in": oids}}}
	})
}

// mutate applies a set operator to the embedded permission array in a single
// atomic document update.
func (c *roleCollection) mutate(ctx context.Context, op, roleID string, permissionIDs []string,
	operator func(oids interface{}) bson.E) (model.Role, error) {
	permissionIDs = model.UniqueIDs(permissionIDs)
	if err := datasource.CheckIDList(c.scheme, model.FieldPermissions, permissionIDs); err != nil {
		return model.Role{}, err
	}
	oid, ok := c.oid(roleID)
	if !ok {
		return model.Role{}, datasource.NotFound(c.entity, roleID)
	}
	oids, err := objectIDs(permissionIDs)
	if err != nil {
		return model.Role{}, datasource.Failure(c.op(op), err)
	}

	update := bson.D{{Key: "$set", Value: bson.M{model.FieldUpdatedAt: model.Timestamp(c.now())}}}
	if len(oids) > 0 {
		update = append(update, operator(oids))
	}
	res := c.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	return c.one(ctx, op, roleID, res)
}

type assignmentCollection struct {
	*collection[model.Assignment, assignmentDoc]
}

func (c *assignmentCollection) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.D{
		{Key: model.FieldIsActive, Value: true},
		{Key: model.FieldExpiresAt, Value: bson.D{{Key: "$ne", Value: nil}, {Key: "$lte", Value: now}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: model.FieldIsActive, Value: false},
		{Key: model.FieldUpdatedAt, Value: model.Timestamp(c.now())},
	}}}

	res, err := c.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, classify(c.op("deactivate expired"), c.entity, err)
	}
	return res.ModifiedCount, nil
}
