package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// UserRepository persists user accounts and roles.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a UserRepository backed by the provided *gorm.DB.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// Create inserts a new user. Usernames must already be normalized; a
// duplicate yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return translate("users: create", r.db.WithContext(ctx).Create(u).Error)
}

// GetByID retrieves a user with their role preloaded.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Preload("Role").First(&u, "id = ?", id).Error
	if err != nil {
		return nil, translate("users: get by id", err)
	}
	return &u, nil
}

// GetByUsername retrieves a user by normalized username with their role
// preloaded.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Preload("Role").First(&u, "username = ?", username).Error
	if err != nil {
		return nil, translate("users: get by username", err)
	}
	return &u, nil
}

// List returns all users ordered by username, roles preloaded.
func (r *UserRepository) List(ctx context.Context) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).Preload("Role").Order("username ASC").Find(&users).Error
	if err != nil {
		return nil, translate("users: list", err)
	}
	return users, nil
}

// Count returns the number of user accounts. Used to detect first start.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&db.User{}).Count(&n).Error; err != nil {
		return 0, translate("users: count", err)
	}
	return n, nil
}

// Update persists all fields of an existing user.
func (r *UserRepository) Update(ctx context.Context, u *db.User) error {
	result := r.db.WithContext(ctx).Save(u)
	if result.Error != nil {
		return translate("users: update", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLoginFailure bumps the failed-attempt counter and, past the
// threshold, sets the lock deadline.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id int64, attempts int, lockedUntil *time.Time) error {
	updates := map[string]any{"failed_attempts": attempts}
	if lockedUntil != nil {
		updates["locked_until"] = *lockedUntil
	}
	err := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Updates(updates).Error
	return translate("users: record login failure", err)
}

// RecordLoginSuccess clears the failure state and stamps last_login.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id int64, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).
		Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
			"last_login":      at,
		}).Error
	return translate("users: record login success", err)
}

// -----------------------------------------------------------------------------
// Roles
// -----------------------------------------------------------------------------

// CreateRole inserts a role. A duplicate name yields ErrConflict.
func (r *UserRepository) CreateRole(ctx context.Context, role *db.Role) error {
	return translate("roles: create", r.db.WithContext(ctx).Create(role).Error)
}

// GetRole retrieves a role by id.
func (r *UserRepository) GetRole(ctx context.Context, id int64) (*db.Role, error) {
	var role db.Role
	err := r.db.WithContext(ctx).First(&role, "id = ?", id).Error
	if err != nil {
		return nil, translate("roles: get", err)
	}
	return &role, nil
}

// GetRoleByName retrieves a role by its unique name.
func (r *UserRepository) GetRoleByName(ctx context.Context, name string) (*db.Role, error) {
	var role db.Role
	err := r.db.WithContext(ctx).First(&role, "name = ?", name).Error
	if err != nil {
		return nil, translate("roles: get by name", err)
	}
	return &role, nil
}

// ListRoles returns all roles ordered by name.
func (r *UserRepository) ListRoles(ctx context.Context) ([]db.Role, error) {
	var roles []db.Role
	err := r.db.WithContext(ctx).Order("name ASC").Find(&roles).Error
	if err != nil {
		return nil, translate("roles: list", err)
	}
	return roles, nil
}

// UpdateRole persists all fields of an existing role.
func (r *UserRepository) UpdateRole(ctx context.Context, role *db.Role) error {
	result := r.db.WithContext(ctx).Save(role)
	if result.Error != nil {
		return translate("roles: update", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
