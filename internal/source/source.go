// Package source implements the cloud file-storage collaborators the
// backup engine lists and reads from: OneDrive (personal and business)
// and SharePoint document libraries via the Microsoft Graph API.
package source

import (
	"context"
	"fmt"

	"github.com/driveback/driveback/internal/backup"
	"github.com/driveback/driveback/internal/config"
)

// TokenProvider supplies bearer tokens for Graph calls. Token acquisition
// and refresh live outside the engine; implementations own their lifetime.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken adapts a fixed token string to TokenProvider, mainly for
// tests and short-lived CLI invocations.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("%w: empty access token", backup.ErrAuthFailure)
	}
	return string(t), nil
}

// New resolves a configured source to its collaborator implementation.
// The variant set is closed: onedrive_personal, onedrive_business and
// sharepoint all speak Graph, differing only in how the drive is resolved.
func New(cfg *config.Source, tokens TokenProvider) (backup.Source, error) {
	switch cfg.Type {
	case config.SourceOneDrivePersonal, config.SourceOneDriveBusiness, config.SourceSharePoint:
		return NewGraphSource(cfg, tokens), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Type)
	}
}
