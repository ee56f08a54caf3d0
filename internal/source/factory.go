package source

import (
	"context"
	"fmt"
	"time"

	"packrat-go/internal/config"
	"packrat-go/internal/dropbox"
	"packrat-go/internal/replay"
	"packrat-go/internal/retry"
)

// NewFetcherFromConfig creates a content Fetcher based on the source config
// type.
func NewFetcherFromConfig(ctx context.Context, cfg config.SourceConfig, retryInterval time.Duration) (replay.Fetcher, error) {
	switch cfg.Type {
	case "dropbox":
		client, err := NewDropboxFromConfig(cfg, retryInterval)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "s3":
		mirror, err := NewS3Mirror(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if retryInterval > 0 {
			mirror.retry.Interval = retryInterval
		}
		return mirror, nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}

// NewDropboxFromConfig creates the Dropbox client, which serves both as
// content fetcher and as the history remote for populate.
func NewDropboxFromConfig(cfg config.SourceConfig, retryInterval time.Duration) (*dropbox.Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("dropbox source requires token to be set")
	}
	client := dropbox.NewClient(cfg.Token)
	if retryInterval > 0 {
		client.Retry = retry.Policy{Interval: retryInterval, IsTransient: retry.IsTransient}
	}
	return client, nil
}
