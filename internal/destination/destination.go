// Package destination implements the blob-store collaborators backups are
// written to: AWS S3 and Azure Blob Storage.
package destination

import (
	"fmt"

	"github.com/driveback/driveback/internal/backup"
	"github.com/driveback/driveback/internal/config"
)

// Credentials carries destination secrets, loaded outside the engine
// (environment or credentials file) and injected at construction time.
type Credentials struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AzureAccountKey    string
}

// New resolves a configured destination to its collaborator implementation.
func New(cfg *config.Destination, creds Credentials) (backup.Destination, error) {
	switch cfg.Type {
	case config.DestinationS3:
		return NewS3(cfg, creds)
	case config.DestinationAzureBlob:
		return NewAzureBlob(cfg, creds)
	default:
		return nil, fmt.Errorf("unsupported destination type %q", cfg.Type)
	}
}
