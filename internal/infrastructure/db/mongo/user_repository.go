package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

const (
	collectionUsers    = "users"
	collectionCounters = "counters"
	usersSequence      = "users"
)

// UserRepository implements ports.UserRepository on a users collection.
// Numeric ids come from a counters collection so both stores expose the same identity.
type UserRepository struct {
	db       *mongo.Database
	users    *mongo.Collection
	counters *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		db:       db,
		users:    db.Collection(collectionUsers),
		counters: db.Collection(collectionCounters),
	}
}

type userDocument struct {
	ID                int64      `bson:"_id"`
	Name              string     `bson:"name"`
	Email             string     `bson:"email"`
	PasswordHash      string     `bson:"password_hash"`
	Role              string     `bson:"role"`
	IsDeleted         bool       `bson:"is_deleted"`
	DeletedAt         *time.Time `bson:"deleted_at,omitempty"`
	ResetToken        *string    `bson:"reset_token,omitempty"`
	ResetTokenExpires *time.Time `bson:"reset_token_expires,omitempty"`
	OTPCode           *string    `bson:"otp_code,omitempty"`
	OTPExpiresAt      *time.Time `bson:"otp_expires_at,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}

	doc := fromDomain(user)
	doc.ID = id
	doc.IsDeleted = false
	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain()
}

func (r *UserRepository) FindActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email, "is_deleted": false})
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) List(ctx context.Context, filter ports.ListUsersFilter) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))

	cur, err := r.users.Find(ctx, listFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	users := make([]*domain.User, 0, max(filter.Limit, 0))
	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		u, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) SetResetToken(ctx context.Context, userID int64, token string, expiresAt, at time.Time) error {
	return r.updateOne(ctx, domain.ErrUserNotFound,
		bson.M{"_id": userID, "is_deleted": false},
		setStamped(bson.M{"reset_token": token, "reset_token_expires": expiresAt}, at),
	)
}

func (r *UserRepository) SetOTP(ctx context.Context, userID int64, code string, expiresAt, at time.Time) error {
	return r.updateOne(ctx, domain.ErrUserNotFound,
		bson.M{"_id": userID, "is_deleted": false},
		setStamped(bson.M{"otp_code": code, "otp_expires_at": expiresAt}, at),
	)
}

// setStamped builds a $set update that also moves updated_at to at.
func setStamped(fields bson.M, at time.Time) bson.M {
	fields["updated_at"] = at
	return bson.M{"$set": fields}
}

// ConsumeResetToken matches and clears the token in a single UpdateOne, which
// is atomic per document.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, email, token, passwordHash string, now time.Time) error {
	return r.updateOne(ctx, domain.ErrInvalidToken,
		bson.M{
			"email":               email,
			"is_deleted":          false,
			"reset_token":         token,
			"reset_token_expires": bson.M{"$gt": now},
		},
		bson.M{
			"$set":   bson.M{"password_hash": passwordHash, "updated_at": now},
			"$unset": bson.M{"reset_token": "", "reset_token_expires": ""},
		},
	)
}

func (r *UserRepository) ConsumeOTP(ctx context.Context, email, code, passwordHash string, now time.Time) error {
	return r.updateOne(ctx, domain.ErrInvalidOrExpiredOTP,
		bson.M{
			"email":          email,
			"is_deleted":     false,
			"otp_code":       code,
			"otp_expires_at": bson.M{"$gt": now},
		},
		bson.M{
			"$set":   bson.M{"password_hash": passwordHash, "updated_at": now},
			"$unset": bson.M{"otp_code": "", "otp_expires_at": ""},
		},
	)
}

func (r *UserRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	err := r.updateOne(ctx, domain.ErrUserNotFound,
		bson.M{"_id": id, "is_deleted": false},
		bson.M{
			"$set":   bson.M{"is_deleted": true, "deleted_at": at, "updated_at": at},
			"$unset": bson.M{"reset_token": "", "reset_token_expires": "", "otp_code": "", "otp_expires_at": ""},
		},
	)
	if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	n, err := r.users.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return domain.ErrAlreadyDeleted
}

func (r *UserRepository) HardDelete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the indexes the repository relies on. The unique email
// index only covers active users so a soft-deleted address can be registered again.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("users_email_active_key").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_deleted": false}),
		},
		{Keys: bson.D{{Key: "is_deleted", Value: 1}}},
	}
	if _, err := r.users.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDocument
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain()
}

func (r *UserRepository) updateOne(ctx context.Context, noMatch error, filter, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return noMatch
	}
	return nil
}

func (r *UserRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": usersSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next user id: %w", err)
	}
	return counter.Seq, nil
}

func listFilter(filter ports.ListUsersFilter) bson.M {
	f := bson.M{}
	if !filter.IncludeDeleted {
		f["is_deleted"] = false
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
		f["$or"] = bson.A{bson.M{"name": re}, bson.M{"email": re}}
	}
	return f
}

func fromDomain(u *domain.User) userDocument {
	return userDocument{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		Role:              string(u.Role),
		IsDeleted:         u.IsDeleted,
		DeletedAt:         u.DeletedAt,
		ResetToken:        u.ResetToken,
		ResetTokenExpires: u.ResetTokenExpires,
		OTPCode:           u.OTPCode,
		OTPExpiresAt:      u.OTPExpiresAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func (d userDocument) toDomain() (*domain.User, error) {
	role, err := domain.ParseRole(d.Role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", d.ID, err)
	}
	return &domain.User{
		ID:                d.ID,
		Name:              d.Name,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		Role:              role,
		IsDeleted:         d.IsDeleted,
		DeletedAt:         utcPtr(d.DeletedAt),
		ResetToken:        d.ResetToken,
		ResetTokenExpires: utcPtr(d.ResetTokenExpires),
		OTPCode:           d.OTPCode,
		OTPExpiresAt:      utcPtr(d.OTPExpiresAt),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
