package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"horizonsync.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Organizations() OrganizationStore { return &orgStore{db: s.db} }
func (s *PGStore) Users() UserStore                 { return &userStore{db: s.db} }
func (s *PGStore) Roles() RoleStore                 { return &roleStore{db: s.db} }
func (s *PGStore) Permissions() PermissionStore     { return &permissionStore{db: s.db} }
func (s *PGStore) Sessions() SessionStore           { return &sessionStore{db: s.db} }
func (s *PGStore) MFA() MFAStore                    { return &mfaStore{db: s.db} }
func (s *PGStore) PasswordResets() PasswordResetStore {
	return &passwordResetStore{db: s.db}
}

// Bootstrap runs the whole tenant creation in one transaction so a failure
// midway cannot leave an orphan organization or an owner without a role.
func (s *PGStore) Bootstrap(ctx context.Context, b *TenantBootstrap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`insert into organizations(id, name, status) values($1,$2,$3)`,
		b.Organization.ID, b.Organization.Name, b.Organization.Status,
	); err != nil {
		return mapPGError(err)
	}
	if _, err := tx.ExecContext(ctx,
		`insert into users(id, organization_id, email, password_hash, status, mfa_state)
		 values($1,$2,$3,$4,$5,$6)`,
		b.Owner.ID, b.Owner.OrganizationID, b.Owner.Email, b.Owner.PasswordHash,
		b.Owner.Status, b.Owner.MFAState,
	); err != nil {
		return mapPGError(err)
	}
	if _, err := tx.ExecContext(ctx,
		`insert into roles(id, organization_id, name, code, hierarchy_level, is_system)
		 values($1,$2,$3,$4,$5,$6)`,
		b.OwnerRole.ID, b.OwnerRole.OrganizationID, b.OwnerRole.Name, b.OwnerRole.Code,
		b.OwnerRole.HierarchyLevel, b.OwnerRole.System,
	); err != nil {
		return mapPGError(err)
	}
	for _, code := range b.RoleCodes {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions(role_id, permission_id)
			 select $1, id from permissions where code=$2`,
			b.OwnerRole.ID, code,
		); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`insert into user_organization_roles(user_id, organization_id, role_id, is_active)
		 values($1,$2,$3,true)`,
		b.Assignment.UserID, b.Assignment.OrganizationID, b.Assignment.RoleID,
	); err != nil {
		return mapPGError(err)
	}
	return tx.Commit()
}

// mapPGError converts driver-level constraint failures into domain errors.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

// Organization store -------------------------------------------------------
type orgStore struct{ db *sql.DB }

func (s *orgStore) Create(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	if org.Status == "" {
		org.Status = OrgStatusActive
	}
	_, err := s.db.ExecContext(ctx,
		`insert into organizations(id, name, status) values($1,$2,$3)`,
		org.ID, org.Name, org.Status,
	)
	return mapPGError(err)
}

func (s *orgStore) Find(ctx context.Context, id string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, status, created_at, updated_at from organizations where id=$1`, id)
	var org Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Status, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *orgStore) List(ctx context.Context) ([]*Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, status, created_at, updated_at from organizations order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Status, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &org)
	}
	return res, rows.Err()
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, organization_id, email, password_hash, status, mfa_state,
	coalesce(mfa_secret,''), failed_login_attempts, locked_until,
	last_login_at, coalesce(last_login_ip,''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.Status, &u.MFAState,
		&u.MFASecret, &u.FailedLoginAttempts, &u.LockedUntil,
		&u.LastLoginAt, &u.LastLoginIP, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, organization_id, email, password_hash, status, mfa_state)
		 values($1,$2,$3,$4,$5,$6)`,
		u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.Status, u.MFAState,
	)
	return mapPGError(err)
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *userStore) ListByOrg(ctx context.Context, orgID string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where organization_id=$1 order by created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		userID, passwordHash)
	return requireRow(res, err)
}

func (s *userStore) UpdateStatus(ctx context.Context, userID string, status UserStatus) error {
	res, err := s.db.ExecContext(ctx,
		`update users set status=$2, updated_at=now() where id=$1`,
		userID, status)
	return requireRow(res, err)
}

func (s *userStore) SetMFA(ctx context.Context, userID string, state MFAState, secret string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set mfa_state=$2, mfa_secret=nullif($3,''), updated_at=now() where id=$1`,
		userID, state, secret)
	return requireRow(res, err)
}

// RecordFailedLogin increments and locks in one statement so that two
// concurrent failures cannot each read the same counter value.
func (s *userStore) RecordFailedLogin(ctx context.Context, userID string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	row := s.db.QueryRowContext(ctx,
		`update users
		 set failed_login_attempts = failed_login_attempts + 1,
		     locked_until = case
		         when failed_login_attempts + 1 >= $2 then now() + make_interval(secs => $3)
		         else locked_until
		     end,
		     updated_at = now()
		 where id=$1
		 returning failed_login_attempts, locked_until`,
		userID, threshold, lockFor.Seconds())

	var (
		attempts    int
		lockedUntil *time.Time
	)
	if err := row.Scan(&attempts, &lockedUntil); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

func (s *userStore) ResetLoginState(ctx context.Context, userID, ip string) error {
	res, err := s.db.ExecContext(ctx,
		`update users
		 set failed_login_attempts=0, locked_until=null,
		     last_login_at=now(), last_login_ip=nullif($2,''), updated_at=now()
		 where id=$1`,
		userID, ip)
	return requireRow(res, err)
}

// Role store ---------------------------------------------------------------
type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, organization_id, name, code, hierarchy_level, is_system)
		 values($1,$2,$3,$4,$5,$6)`,
		role.ID, role.OrganizationID, role.Name, role.Code, role.HierarchyLevel, role.System,
	)
	return mapPGError(err)
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, organization_id, name, code, hierarchy_level, is_system, created_at, updated_at
		 from roles where id=$1`, id)
	var role Role
	if err := row.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Code,
		&role.HierarchyLevel, &role.System, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) ListByOrg(ctx context.Context, orgID string) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, organization_id, name, code, hierarchy_level, is_system, created_at, updated_at
		 from roles where organization_id=$1 order by hierarchy_level, created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Code,
			&role.HierarchyLevel, &role.System, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *roleStore) Assign(ctx context.Context, a Assignment) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_organization_roles(user_id, organization_id, role_id, is_active)
		 values($1,$2,$3,true)
		 on conflict (user_id, organization_id, role_id) do update set is_active=true`,
		a.UserID, a.OrganizationID, a.RoleID,
	)
	return err
}

func (s *roleStore) RemoveAssignment(ctx context.Context, userID, orgID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`update user_organization_roles set is_active=false
		 where user_id=$1 and organization_id=$2 and role_id=$3 and is_active`,
		userID, orgID, roleID)
	return requireRow(res, err)
}

func (s *roleStore) ActiveRoleIDs(ctx context.Context, userID, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select role_id from user_organization_roles
		 where user_id=$1 and organization_id=$2 and is_active order by role_id`, userID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roleIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, id)
	}
	return roleIDs, rows.Err()
}

// Permission store ---------------------------------------------------------
type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Ensure(ctx context.Context, perms []Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx,
			`insert into permissions(id, code, description) values($1,$2,$3)
			 on conflict (code) do nothing`,
			p.ID, p.Code, p.Description,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, code, coalesce(description,''), created_at from permissions order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, codes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, code := range codes {
		_, err := tx.ExecContext(ctx,
			`insert into role_permissions(role_id, permission_id)
			 select $1, id from permissions where code=$2`, roleID, code,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *permissionStore) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.code, coalesce(p.description,''), p.created_at from permissions p
		 join role_permissions rp on rp.permission_id=p.id where rp.role_id=$1 order by p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ResolveForUser is the whole permission model in one query: the union of
// grants over active assignments, never crossing the organization boundary.
func (s *permissionStore) ResolveForUser(ctx context.Context, userID, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select distinct p.code
		 from permissions p
		 join role_permissions rp on rp.permission_id=p.id
		 join user_organization_roles uor on uor.role_id=rp.role_id
		 where uor.user_id=$1 and uor.organization_id=$2 and uor.is_active
		 order by p.code`, userID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Session store ------------------------------------------------------------
type sessionStore struct{ db *sql.DB }

const sessionColumns = `id, user_id, organization_id, family_id, token_hash,
	coalesce(device_name,''), coalesce(ip_address,''), coalesce(user_agent,''),
	created_at, expires_at, last_used_at, revoked_at, coalesce(revoked_reason,'')`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.OrganizationID, &sess.FamilyID, &sess.TokenHash,
		&sess.DeviceName, &sess.IPAddress, &sess.UserAgent,
		&sess.IssuedAt, &sess.ExpiresAt, &sess.LastUsedAt, &sess.RevokedAt, &sess.RevokedReason,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, organization_id, family_id, token_hash,
		   device_name, ip_address, user_agent, created_at, expires_at)
		 values($1,$2,$3,$4,$5,nullif($6,''),nullif($7,''),nullif($8,''),$9,$10)`,
		sess.ID, sess.UserID, sess.OrganizationID, sess.FamilyID, sess.TokenHash,
		sess.DeviceName, sess.IPAddress, sess.UserAgent, sess.IssuedAt, sess.ExpiresAt,
	)
	return mapPGError(err)
}

func (s *sessionStore) Find(ctx context.Context, id string) (*Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id=$1`, id))
}

func (s *sessionStore) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions
		 where user_id=$1 and revoked_at is null and expires_at > now()
		 order by created_at desc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Rotate swaps the token hash only when the presented hash is still current.
// Zero rows means the session is dead or the hash was superseded; the
// follow-up read tells those apart.
func (s *sessionStore) Rotate(ctx context.Context, id, oldHash, newHash string, extend time.Duration) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`update sessions
		 set token_hash=$3, last_used_at=now(), expires_at=now() + make_interval(secs => $4)
		 where id=$1 and token_hash=$2 and revoked_at is null and expires_at > now()
		 returning `+sessionColumns,
		id, oldHash, newHash, extend.Seconds())

	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	current, findErr := s.Find(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	switch {
	case current.RevokedAt != nil:
		return nil, ErrSessionRevoked
	case !current.ExpiresAt.After(time.Now()):
		return nil, ErrTokenExpired
	default:
		return nil, errRotationMismatch
	}
}

func (s *sessionStore) Revoke(ctx context.Context, userID, sessionID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=now(), revoked_reason=$3
		 where id=$2 and user_id=$1 and revoked_at is null`,
		userID, sessionID, reason)
	return requireRow(res, err)
}

func (s *sessionStore) RevokeFamily(ctx context.Context, familyID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=now(), revoked_reason=$2
		 where family_id=$1 and revoked_at is null`,
		familyID, reason)
	return err
}

func (s *sessionStore) RevokeAllForUser(ctx context.Context, userID, exceptSessionID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=now(), revoked_reason=$3
		 where user_id=$1 and id <> $2 and revoked_at is null`,
		userID, exceptSessionID, reason)
	return err
}

func (s *sessionStore) TrimOldest(ctx context.Context, userID string, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=now(), revoked_reason='session_limit'
		 where user_id=$1 and revoked_at is null and expires_at > now()
		   and id not in (
		     select id from sessions
		     where user_id=$1 and revoked_at is null and expires_at > now()
		     order by created_at desc limit $2)`,
		userID, keep)
	return err
}

// MFA store ----------------------------------------------------------------
type mfaStore struct{ db *sql.DB }

func (s *mfaStore) ReplaceRecoveryCodes(ctx context.Context, userID string, codeHashes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from mfa_recovery_codes where user_id=$1`, userID); err != nil {
		return err
	}
	for _, hash := range codeHashes {
		_, err := tx.ExecContext(ctx,
			`insert into mfa_recovery_codes(id, user_id, code_hash) values($1,$2,$3)`,
			ids.New(), userID, hash,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ConsumeRecoveryCode burns at most one matching unused code.
func (s *mfaStore) ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update mfa_recovery_codes set used_at=now()
		 where id = (
		   select id from mfa_recovery_codes
		   where user_id=$1 and code_hash=$2 and used_at is null limit 1)`,
		userID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *mfaStore) DeleteRecoveryCodes(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from mfa_recovery_codes where user_id=$1`, userID)
	return err
}

func (s *mfaStore) CreateChallenge(ctx context.Context, id, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into mfa_challenges(id, user_id, expires_at) values($1,$2,$3)`,
		id, userID, expiresAt)
	return mapPGError(err)
}

func (s *mfaStore) ConsumeChallenge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update mfa_challenges set used_at=now()
		 where id=$1 and used_at is null and expires_at > now()`,
		id)
	return requireRow(res, err)
}

// Password reset store -----------------------------------------------------
type passwordResetStore struct{ db *sql.DB }

func (s *passwordResetStore) Create(ctx context.Context, pr *PasswordReset) error {
	if pr.ID == "" {
		pr.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// A newer request supersedes every outstanding token for the account.
	if _, err := tx.ExecContext(ctx,
		`update password_resets set used_at=now() where user_id=$1 and used_at is null`,
		pr.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into password_resets(id, user_id, token_hash, ip_address, user_agent, expires_at, created_at)
		 values($1,$2,$3,nullif($4,''),nullif($5,''),$6,$7)`,
		pr.ID, pr.UserID, pr.TokenHash, pr.IPAddress, pr.UserAgent, pr.ExpiresAt, pr.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *passwordResetStore) Find(ctx context.Context, id string) (*PasswordReset, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, coalesce(ip_address,''), coalesce(user_agent,''),
		        expires_at, used_at, created_at
		 from password_resets where id=$1`, id)
	var pr PasswordReset
	if err := row.Scan(&pr.ID, &pr.UserID, &pr.TokenHash, &pr.IPAddress, &pr.UserAgent,
		&pr.ExpiresAt, &pr.UsedAt, &pr.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pr, nil
}

func (s *passwordResetStore) MarkUsed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update password_resets set used_at=now() where id=$1 and used_at is null`, id)
	return requireRow(res, err)
}

// requireRow maps a zero-row write to ErrNotFound.
func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
