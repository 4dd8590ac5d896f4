package store

import (
	"context"
	"database/sql"
	"errors"
)

// Admin roles. Super admins hold all of them implicitly.
const (
	RoleModerator = "moderator"
	RoleTreasurer = "treasurer"
	RoleOperator  = "operator"
)

// Roles lists every grantable role.
var Roles = []string{RoleModerator, RoleTreasurer, RoleOperator}

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) IsAdmin(ctx context.Context, accountID string) (bool, bool, error) {
	var isSuper bool
	err := s.db.GetContext(ctx, &isSuper, `
		SELECT is_super
		FROM admins
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, isSuper, nil
}

func (s *AdminStore) HasRole(ctx context.Context, accountID, role string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM admin_roles
		WHERE admin_account_id = $1 AND role = $2
	`, accountID, role)
	return count > 0, err
}

func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, accountID string, isSuper bool, createdBy *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (account_id, is_super, created_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET is_super = admins.is_super OR EXCLUDED.is_super
	`, accountID, isSuper, createdBy)
	return err
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminAccountID, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_account_id, role)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, adminAccountID, role)
	return err
}

func (s *AdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM admins`)
	return count > 0, err
}
