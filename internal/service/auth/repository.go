package auth

import (
	"context"
	"errors"
	"sync"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("auth repository: not found")

type Repository interface {
	CreateAdmin(ctx context.Context, admin model.AdminItem) error
	GetAdminByEmail(ctx context.Context, email string) (model.AdminItem, error)
	GetAdminByID(ctx context.Context, adminID string) (model.AdminItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) CreateAdmin(ctx context.Context, admin model.AdminItem) error {
	return r.db.Client.PutItem(ctx, model.AdminsTable, admin, database.Expr{
		Condition: "attribute_not_exists(email)",
	})
}

func (r *DynamoRepository) GetAdminByEmail(ctx context.Context, email string) (model.AdminItem, error) {
	var admin model.AdminItem
	err := r.db.Client.GetItem(
		ctx,
		model.AdminsTable,
		map[string]types.AttributeValue{"email": database.S(email)},
		&admin,
	)
	if err != nil {
		if database.IsNotFound(err) {
			return model.AdminItem{}, ErrNotFound
		}
		return model.AdminItem{}, err
	}
	return admin, nil
}

// GetAdminByID scans; the admins table holds a handful of rows.
func (r *DynamoRepository) GetAdminByID(ctx context.Context, adminID string) (model.AdminItem, error) {
	items, err := r.db.Client.ScanAll(ctx, model.AdminsTable, database.Expr{
		Filter: "adminId = :adminId",
		Values: map[string]types.AttributeValue{":adminId": database.S(adminID)},
	})
	if err != nil {
		return model.AdminItem{}, err
	}
	if len(items) == 0 {
		return model.AdminItem{}, ErrNotFound
	}

	var admin model.AdminItem
	if err := attributevalue.UnmarshalMap(items[0], &admin); err != nil {
		return model.AdminItem{}, err
	}
	return admin, nil
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &GormRepository{db: db}
}

func (r *GormRepository) CreateAdmin(ctx context.Context, admin model.AdminItem) error {
	return r.db.WithContext(ctx).Create(&admin).Error
}

func (r *GormRepository) GetAdminByEmail(ctx context.Context, email string) (model.AdminItem, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *GormRepository) GetAdminByID(ctx context.Context, adminID string) (model.AdminItem, error) {
	return r.first(ctx, "admin_id = ?", adminID)
}

func (r *GormRepository) first(ctx context.Context, query string, arg string) (model.AdminItem, error) {
	var admin model.AdminItem
	err := r.db.WithContext(ctx).Where(query, arg).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.AdminItem{}, ErrNotFound
	}
	return admin, err
}

type MemoryRepository struct {
	mu     sync.Mutex
	admins map[string]model.AdminItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{admins: make(map[string]model.AdminItem)}
}

func (m *MemoryRepository) CreateAdmin(ctx context.Context, admin model.AdminItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[admin.Email]; ok {
		return errors.New("admin already exists")
	}
	m.admins[admin.Email] = admin
	return nil
}

func (m *MemoryRepository) GetAdminByEmail(ctx context.Context, email string) (model.AdminItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	admin, ok := m.admins[email]
	if !ok {
		return model.AdminItem{}, ErrNotFound
	}
	return admin, nil
}

func (m *MemoryRepository) GetAdminByID(ctx context.Context, adminID string) (model.AdminItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, admin := range m.admins {
		if admin.AdminID == adminID {
			return admin, nil
		}
	}
	return model.AdminItem{}, ErrNotFound
}
