package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mesh-intelligence/fusion/internal/engine"
	"github.com/mesh-intelligence/fusion/pkg/types"
)

// documentUnit is a unit of work over the shared users collection. Every
// write is durable on return; Commit only advances the lifecycle.
type documentUnit struct {
	lifecycle

	coll *mongo.Collection
	now  func() time.Time
}

var (
	_ types.UnitOfWork  = (*documentUnit)(nil)
	_ types.DocumentOps = (*documentUnit)(nil)
)

func newDocumentUnit(coll *mongo.Collection, now func() time.Time) *documentUnit {
	return &documentUnit{coll: coll, now: now}
}

func (u *documentUnit) Kind() types.BackendKind { return types.BackendMongo }

func (u *documentUnit) Relational() (types.RelationalOps, bool) { return nil, false }

func (u *documentUnit) Document() (types.DocumentOps, bool) { return u, true }

func (u *documentUnit) Commit() error { return u.beginCommit() }

func (u *documentUnit) Close() error {
	u.beginClose()
	return nil
}

func (u *documentUnit) FindByField(ctx context.Context, field types.UserField, value string) (*types.User, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidField, string(field))
	}
	return u.findOne(ctx, bson.D{{Key: string(field), Value: value}})
}

func (u *documentUnit) FindByEither(ctx context.Context, email, username string) (*types.User, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: string(types.FieldEmail), Value: email}},
		bson.D{{Key: string(types.FieldUsername), Value: username}},
	}}}
	return u.findOne(ctx, filter)
}

// Insert stamps created_at and updated_at with the unit's clock in UTC,
// truncated to the millisecond precision BSON dates keep.
func (u *documentUnit) Insert(ctx context.Context, user *types.User) (types.UserID, error) {
	if err := u.active(); err != nil {
		return types.UserID{}, err
	}
	if err := user.Validate(); err != nil {
		return types.UserID{}, err
	}

	stamp := u.now().UTC().Truncate(time.Millisecond)
	doc := newUserDoc(user)
	doc.CreatedAt = stamp
	doc.UpdatedAt = stamp

	res, err := u.coll.InsertOne(ctx, doc)
	if err != nil {
		if engine.IsDuplicate(err) {
			return types.UserID{}, fmt.Errorf("%w: %w", types.ErrDuplicateUser, err)
		}
		return types.UserID{}, fmt.Errorf("insert user: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return types.UserID{}, fmt.Errorf("insert user: unexpected id type %T", res.InsertedID)
	}

	user.ID = types.OpaqueID(oid.Hex())
	user.CreatedAt = stamp
	user.UpdatedAt = stamp
	return user.ID, nil
}

func (u *documentUnit) List(ctx context.Context, skip, limit int) ([]types.User, error) {
	if skip < 0 {
		skip = 0
	}
	return u.FindUsers(ctx, bson.D{}, int64(skip), int64(limit))
}

func (u *documentUnit) Count(ctx context.Context, field types.UserField, value string) (int64, error) {
	if err := u.active(); err != nil {
		return 0, err
	}
	if !field.Valid() {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidField, string(field))
	}
	n, err := u.coll.CountDocuments(ctx, bson.D{{Key: string(field), Value: value}})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// FindUsers runs filter against the users collection in insertion order.
func (u *documentUnit) FindUsers(ctx context.Context, filter any, skip, limit int64) ([]types.User, error) {
	if err := u.active(); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bson.D{}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := u.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]types.User, len(docs))
	for i := range docs {
		users[i] = docs[i].user()
	}
	return users, nil
}

func (u *documentUnit) findOne(ctx context.Context, filter bson.D) (*types.User, error) {
	if err := u.active(); err != nil {
		return nil, err
	}
	var doc userDoc
	err := u.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	user := doc.user()
	return &user, nil
}

// userDoc is the stored shape of a user document. Documents written without
// is_active are treated as active.
type userDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Email          string             `bson:"email"`
	Username       string             `bson:"username"`
	HashedPassword string             `bson:"hashed_password"`
	FullName       *string            `bson:"full_name"`
	IsActive       *bool              `bson:"is_active"`
	IsSuperuser    bool               `bson:"is_superuser"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

func newUserDoc(u *types.User) userDoc {
	active := u.IsActive
	doc := userDoc{
		Email:          u.Email,
		Username:       u.Username,
		HashedPassword: u.HashedPassword,
		IsActive:       &active,
		IsSuperuser:    u.IsSuperuser,
	}
	if u.FullName != "" {
		name := u.FullName
		doc.FullName = &name
	}
	return doc
}

func (d userDoc) user() types.User {
	u := types.User{
		ID:             types.OpaqueID(d.ID.Hex()),
		Email:          d.Email,
		Username:       d.Username,
		HashedPassword: d.HashedPassword,
		IsActive:       d.IsActive == nil || *d.IsActive,
		IsSuperuser:    d.IsSuperuser,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	if d.FullName != nil {
		u.FullName = *d.FullName
	}
	return u
}
