package model

import "time"

// 管理者操作の種類
type AuditAction string

const (
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionCreateProduct     AuditAction = "CREATE_PRODUCT"
	AuditActionUpdateProduct     AuditAction = "UPDATE_PRODUCT"
	AuditActionDeleteProduct     AuditAction = "DELETE_PRODUCT"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionUpdateOrderStatus, AuditActionCreateProduct, AuditActionUpdateProduct, AuditActionDeleteProduct:
		return true
	}
	return false
}

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceProduct AuditResourceType = "product"
	AuditResourceOrder   AuditResourceType = "order"
)

func (r AuditResourceType) Valid() bool {
	return r == AuditResourceProduct || r == AuditResourceOrder
}

// 監査ログ（管理者操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
// Postgres/MongoDBのどちらにも保存できるようにbsonタグも持つ。
type AuditLog struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id" bson:"-"`
	ActorUserID  int64             `gorm:"not null;index" json:"actor_user_id" bson:"actor_user_id"`
	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action" bson:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type" bson:"resource_type"`
	ResourceID   int64             `gorm:"not null;index" json:"resource_id" bson:"resource_id"`
	BeforeJSON   string            `gorm:"type:text" json:"before_json" bson:"before_json"`
	AfterJSON    string            `gorm:"type:text" json:"after_json" bson:"after_json"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at" bson:"created_at"`
}
