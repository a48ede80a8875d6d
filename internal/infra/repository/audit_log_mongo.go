package repository

import (
	"context"
	"time"

	"shopapi/internal/domain/model"
	repo "shopapi/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const auditLogCollection = "audit_logs"

// MONGO_URIがあるときの監査ログ保存先
type auditLogMongoRepository struct {
	coll *mongo.Collection
}

func NewAuditLogMongoRepository(db *mongo.Database) repo.AuditLogRepository {
	return &auditLogMongoRepository{coll: db.Collection(auditLogCollection)}
}

func (r *auditLogMongoRepository) Create(ctx context.Context, log model.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, log)
	return err
}

func (r *auditLogMongoRepository) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	limit, offset := auditPage(filter)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.coll.Find(ctx, auditLogMongoFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := []model.AuditLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func auditLogMongoFilter(f repo.AuditLogFilter) bson.M {
	m := bson.M{}
	if f.ActorUserID != nil {
		m["actor_user_id"] = *f.ActorUserID
	}
	if f.Action != nil {
		m["action"] = string(*f.Action)
	}
	if f.ResourceType != nil {
		m["resource_type"] = string(*f.ResourceType)
	}
	if f.ResourceID != nil {
		m["resource_id"] = *f.ResourceID
	}
	return m
}
