package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/coursehub-backend/internal/clients/gcp"
	"github.com/yungbote/coursehub-backend/internal/clients/redis"
	"github.com/yungbote/coursehub-backend/internal/platform/flutterwave"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
	"github.com/yungbote/coursehub-backend/internal/platform/sendgrid"
)

type Clients struct {
	Gateway   flutterwave.Gateway
	GcpBucket gcp.BucketService
	Locker    redis.Locker
	Mail      sendgrid.Client
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Flutterwave
	gateway, err := flutterwave.New(log, cfg.Flutterwave)
	if err != nil {
		return Clients{}, fmt.Errorf("init flutterwave client: %w", err)
	}

	// Gcs
	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		log.Warn("Certificate bucket disabled, certificates are streamed from the API", "error", err)
		bucket = nil
	}

	// Redis
	locker := redis.NewNoopLocker()
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		l, err := redis.NewLocker(log)
		if err != nil {
			log.Warn("Redis locker unavailable, relying on store uniqueness", "error", err)
		} else {
			locker = l
		}
	}

	// SendGrid
	var mail sendgrid.Client
	if strings.TrimSpace(cfg.SendGrid.APIKey) != "" {
		m, err := sendgrid.New(log, cfg.SendGrid)
		if err != nil {
			log.Warn("SendGrid unavailable, notifications disabled", "error", err)
		} else {
			mail = m
		}
	}

	return Clients{
		Gateway:   gateway,
		GcpBucket: bucket,
		Locker:    locker,
		Mail:      mail,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Locker != nil {
		_ = c.Locker.Close()
	}
	if c.GcpBucket != nil {
		_ = c.GcpBucket.Close()
	}
}
