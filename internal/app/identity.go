package app

import (
	"context"
	"errors"
	"strings"

	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
)

var (
	ErrNoUserIdentifier = errors.New("no user identifier")
	ErrUserNotFound     = errors.New("user not found")
)

// UserDirectory looks up accounts by email.
type UserDirectory interface {
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}

// IdentityResolver decides which account a checkout belongs to.
type IdentityResolver struct {
	users UserDirectory
}

func NewIdentityResolver(users UserDirectory) *IdentityResolver {
	return &IdentityResolver{users: users}
}

// ParseReference splits a "userId:packageId" client reference. A package id
// from metadata wins over the embedded one.
func ParseReference(clientReferenceID, metadataPackageID string) (userID string, packageID string) {
	clientReferenceID = strings.TrimSpace(clientReferenceID)
	if clientReferenceID != "" {
		if strings.Contains(clientReferenceID, ":") {
			parts := strings.Split(clientReferenceID, ":")
			userID = strings.TrimSpace(parts[0])
			packageID = strings.TrimSpace(parts[1])
		} else {
			userID = clientReferenceID
		}
	}
	if metadata := strings.TrimSpace(metadataPackageID); metadata != "" {
		packageID = metadata
	}
	return userID, packageID
}

// ResolveUser returns userID when present, otherwise the account registered
// under email.
func (r *IdentityResolver) ResolveUser(ctx context.Context, userID, email string) (string, error) {
	if userID = strings.TrimSpace(userID); userID != "" {
		return userID, nil
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrNoUserIdentifier
	}

	found, err := r.users.FindUserIDByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return found, nil
}
