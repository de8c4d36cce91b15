// Package identity persists the normalized social identities produced by the
// OAuth flow. It owns user creation and profile refresh; the auth packages
// only see the Upserter boundary.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	authdomain "github.com/dodamlabs/dodam/internal/auth/domain"
	"github.com/dodamlabs/dodam/internal/clock"
	"github.com/dodamlabs/dodam/internal/config"
	"github.com/dodamlabs/dodam/pkg/db"
)

// Upserter creates or refreshes a user from a normalized social identity.
type Upserter struct {
	users  authdomain.UserRepository
	sealer *Sealer
	genID  *snowflake.Node
	clock  clock.Clock
	log    *zap.Logger

	adminEmails map[string]struct{}
}

// New builds the default GORM-backed upserter.
func New(
	users authdomain.UserRepository,
	cfg config.Config,
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) (authdomain.Upserter, error) {
	sealer, err := NewSealer(cfg.SessionSecret)
	if err != nil {
		return nil, err
	}

	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			admins[email] = struct{}{}
		}
	}

	return &Upserter{
		users:       users,
		sealer:      sealer,
		genID:       genID,
		clock:       clk,
		log:         log.Named("identity.upserter"),
		adminEmails: admins,
	}, nil
}

// UpsertFromSocial finds the user owning the (provider, providerUserId) pair,
// creating one when absent. An account that signed up through a different
// provider is unified by verified email instead of duplicated. Kakao and
// Apple may withhold email entirely; those identities still resolve through
// the provider pair alone.
func (u *Upserter) UpsertFromSocial(ctx context.Context, identity authdomain.SocialIdentity) (*authdomain.User, error) {
	if !identity.Provider.Valid() || strings.TrimSpace(identity.ProviderUserID) == "" {
		return nil, fmt.Errorf("%w: incomplete identity", authdomain.ErrUserUpsertFailed)
	}

	user, err := u.users.FindByProviderIdentity(ctx, identity.Provider, identity.ProviderUserID)
	switch {
	case err == nil:
		return u.refresh(ctx, user, identity)
	case errors.Is(err, authdomain.ErrUserNotFound):
	default:
		return nil, fmt.Errorf("%w: %v", authdomain.ErrUserUpsertFailed, err)
	}

	if identity.Email != nil {
		existing, err := u.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(*identity.Email)))
		switch {
		case err == nil:
			return u.relink(ctx, existing, identity)
		case errors.Is(err, authdomain.ErrUserNotFound):
		default:
			return nil, fmt.Errorf("%w: %v", authdomain.ErrUserUpsertFailed, err)
		}
	}

	return u.create(ctx, identity)
}

func (u *Upserter) create(ctx context.Context, identity authdomain.SocialIdentity) (*authdomain.User, error) {
	now := u.clock.Now()
	user := &authdomain.User{
		ID:             u.genID.Generate(),
		Provider:       identity.Provider.String(),
		ProviderUserID: identity.ProviderUserID,
		Email:          normalizeEmail(identity.Email),
		DisplayName:    identity.DisplayName,
		AvatarURL:      identity.AvatarURL,
		IsAdmin:        u.isAdmin(identity.Email),
		Metadata:       claimsMetadata(identity.RawClaims),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if identity.RefreshToken != "" {
		sealed, err := u.sealer.Seal(identity.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", authdomain.ErrUserUpsertFailed, err)
		}
		user.RefreshTokenEnc = &sealed
	}

	if err := u.users.Create(ctx, user); err != nil {
		// Two first logins for the same identity can race past the existence
		// check; the loser picks up the winner's row.
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := u.users.FindByProviderIdentity(ctx, identity.Provider, identity.ProviderUserID)
			if findErr == nil {
				return u.refresh(ctx, existing, identity)
			}
		}
		return nil, fmt.Errorf("%w: %v", authdomain.ErrUserUpsertFailed, err)
	}

	u.log.Info("user created",
		zap.String("provider", identity.Provider.String()),
		zap.Int64("user_id", int64(user.ID)),
		zap.Bool("has_email", user.Email != nil),
	)
	return user, nil
}

// refresh applies profile changes reported by the provider on a returning
// login. Absent claims never clear stored values.
func (u *Upserter) refresh(ctx context.Context, user *authdomain.User, identity authdomain.SocialIdentity) (*authdomain.User, error) {
	updates := map[string]any{}

	if email := normalizeEmail(identity.Email); email != nil && !equalPtr(user.Email, email) {
		updates["email"] = *email
		user.Email = email
	}
	if identity.DisplayName != nil && !equalPtr(user.DisplayName, identity.DisplayName) {
		updates["display_name"] = *identity.DisplayName
		user.DisplayName = identity.DisplayName
	}
	if identity.AvatarURL != nil && !equalPtr(user.AvatarURL, identity.AvatarURL) {
		updates["avatar_url"] = *identity.AvatarURL
		user.AvatarURL = identity.AvatarURL
	}
	if identity.RefreshToken != "" {
		sealed, err := u.sealer.Seal(identity.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", authdomain.ErrUserUpsertFailed, err)
		}
		updates["refresh_token_enc"] = sealed
		user.RefreshTokenEnc = &sealed
	}
	if isAdmin := u.isAdmin(user.Email); isAdmin != user.IsAdmin {
		updates["is_admin"] = isAdmin
		user.IsAdmin = isAdmin
	}
	if len(identity.RawClaims) > 0 {
		metadata := claimsMetadata(identity.RawClaims)
		updates["metadata"] = metadata
		user.Metadata = metadata
	}

	if len(updates) > 0 {
		updates["updated_at"] = u.clock.Now()
		if err := u.users.UpdateFields(ctx, user.ID, updates); err != nil {
			return nil, fmt.Errorf("%w: %v", authdomain.ErrUserUpsertFailed, err)
		}
	}
	return user, nil
}

// relink attaches a new provider identity to an account matched by email.
// The provider pair is replaced rather than accumulated; the most recent
// login provider owns the account.
func (u *Upserter) relink(ctx context.Context, user *authdomain.User, identity authdomain.SocialIdentity) (*authdomain.User, error) {
	u.log.Info("identity relinked by email",
		zap.String("old_provider", user.Provider),
		zap.String("new_provider", identity.Provider.String()),
		zap.Int64("user_id", int64(user.ID)),
	)

	user.Provider = identity.Provider.String()
	user.ProviderUserID = identity.ProviderUserID
	updates := map[string]any{
		"provider":         user.Provider,
		"provider_user_id": user.ProviderUserID,
	}
	if err := u.users.UpdateFields(ctx, user.ID, updates); err != nil {
		return nil, fmt.Errorf("%w: %v", authdomain.ErrUserUpsertFailed, err)
	}
	return u.refresh(ctx, user, identity)
}

func (u *Upserter) isAdmin(email *string) bool {
	if email == nil {
		return false
	}
	_, ok := u.adminEmails[strings.ToLower(strings.TrimSpace(*email))]
	return ok
}

// claimsMetadata copies the provider's raw claim payload into the JSONB
// column type. The copy keeps later claim updates from aliasing stored state.
func claimsMetadata(claims map[string]any) datatypes.JSONMap {
	metadata := datatypes.JSONMap{}
	for k, v := range claims {
		metadata[k] = v
	}
	return metadata
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(*email))
	if normalized == "" {
		return nil
	}
	return &normalized
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
