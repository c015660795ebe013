package mongo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// collection implements datasource.DataSource[T] over one collection whose
// documents have type D.
type collection[T model.Record[T], D any] struct {
	coll   *mongo.Collection
	entity string
	scheme ids.Scheme
	now    func() time.Time
	keys   map[string]string
	encode func(T) (D, error)
	decode func(D) T
}

func newCollection[T model.Record[T], D any](coll *mongo.Collection, entity string, now func() time.Time,
	encode func(T) (D, error), decode func(D) T) *collection[T, D] {
	var zero T
	return &collection[T, D]{
		coll:   coll,
		entity: entity,
		scheme: ids.ObjectIDScheme{},
		now:    now,
		keys:   keys(zero.FieldSpecs()),
		encode: encode,
		decode: decode,
	}
}

var findOrder = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

func (c *collection[T, D]) specs() map[string]model.FieldSpec {
	var zero T
	return zero.FieldSpecs()
}

func (c *collection[T, D]) op(name string) string {
	return c.entity + " " + name
}

func (c *collection[T, D]) Create(ctx context.Context, entity T) (T, error) {
	var zero T

	id := strings.ToLower(entity.GetID())
	if !c.scheme.Valid(id) {
		id = c.scheme.New()
	}
	entity = entity.Prepare(id, c.now())
	if err := datasource.CheckIDs(c.scheme, entity); err != nil {
		return zero, err
	}
	doc, err := c.encode(entity)
	if err != nil {
		return zero, datasource.Failure(c.op("encode"), err)
	}
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return zero, classify(c.op("create"), c.entity, err)
	}
	return entity, nil
}

func (c *collection[T, D]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	oid, ok := c.oid(id)
	if !ok {
		return zero, datasource.NotFound(c.entity, id)
	}
	return c.one(ctx, "find", id, c.coll.FindOne(ctx, bson.M{"_id": oid}))
}

// one decodes a single-document result, mapping no match to NotFound.
func (c *collection[T, D]) one(ctx context.Context, op, id string, res *mongo.SingleResult) (T, error) {
	var zero T
	var doc D
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, datasource.NotFound(c.entity, id)
		}
		return zero, classify(c.op(op), c.entity, err)
	}
	return c.decode(doc), nil
}

func (c *collection[T, D]) FindAll(ctx context.Context) ([]T, error) {
	return c.FindByFields(ctx, nil)
}

func (c *collection[T, D]) FindByField(ctx context.Context, field string, value interface{}) ([]T, error) {
	if value == nil {
		return nil, model.ErrInvalidField.WithMessage("field %q: nil value", field)
	}
	return c.FindByFields(ctx, model.Fields{field: value})
}

func (c *collection[T, D]) FindByFields(ctx context.Context, filter model.Fields) ([]T, error) {
	norm, err := model.NormalizeFilter(c.specs(), filter)
	if err != nil {
		return nil, err
	}
	if !datasource.Matchable(c.scheme, c.specs(), norm) {
		return []T{}, nil
	}
	query, err := c.document(norm)
	if err != nil {
		return nil, datasource.Failure(c.op("query"), err)
	}

	cur, err := c.coll.Find(ctx, query, options.Find().SetSort(findOrder))
	if err != nil {
		return nil, classify(c.op("query"), c.entity, err)
	}
	var docs []D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(c.op("query"), c.entity, err)
	}

	out := make([]T, 0, len(docs))
	for _, d := range docs {
		out = append(out, c.decode(d))
	}
	return out, nil
}

func (c *collection[T, D]) UpdateByID(ctx context.Context, id string, patch model.Fields) (T, error) {
	var zero T
	norm, err := model.NormalizePatch(c.specs(), patch)
	if err != nil {
		return zero, err
	}
	if err := datasource.CheckPatchIDs(c.scheme, c.specs(), norm); err != nil {
		return zero, err
	}
	oid, ok := c.oid(id)
	if !ok {
		return zero, datasource.NotFound(c.entity, id)
	}
	set, err := c.document(norm)
	if err != nil {
		return zero, datasource.Failure(c.op("update"), err)
	}
	set = append(set, bson.E{Key: model.FieldUpdatedAt, Value: model.Timestamp(c.now())})

	res := c.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	return c.one(ctx, "update", id, res)
}

func (c *collection[T, D]) DeleteByID(ctx context.Context, id string) (T, error) {
	var zero T
	oid, ok := c.oid(id)
	if !ok {
		return zero, datasource.NotFound(c.entity, id)
	}
	return c.one(ctx, "delete", id, c.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}))
}

func (c *collection[T, D]) CountAll(ctx context.Context) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, classify(c.op("count"), c.entity, err)
	}
	return n, nil
}

func (c *collection[T, D]) DeleteAll(ctx context.Context) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, classify(c.op("delete all"), c.entity, err)
	}
	return res.DeletedCount, nil
}

func (c *collection[T, D]) oid(id string) (interface{}, bool) {
	if !c.scheme.Valid(id) {
		return nil, false
	}
	oid, err := objectID(id)
	return oid, err == nil
}

// document renders normalised fields as an ordered BSON document, converting
// id-valued fields to ObjectIDs and unset optionals to null.
func (c *collection[T, D]) document(fields model.Fields) (bson.D, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := c.specs()
	out := make(bson.D, 0, len(names))
	for _, name := range names {
		v, err := bsonValue(specs[name], fields[name])
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: c.keys[name], Value: v})
	}
	return out, nil
}

func bsonValue(spec model.FieldSpec, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if !spec.IsID() {
			return val, nil
		}
		if val == "" && spec.Kind == model.KindOptionalID {
			return nil, nil
		}
		return objectID(val)
	case []string:
		return objectIDs(val)
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	default:
		return v, nil
	}
}
