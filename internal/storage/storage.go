// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"freegames_bot/internal/model"
)

// ErrStore marks a failure of the underlying persistence layer.
var ErrStore = errors.New("store")

// Storage owns subscriber preferences and delivered-item records. Every
// operation is atomic with respect to reads of the same row.
type Storage interface {
	GetOrCreate(ctx context.Context, id int64, defaults model.SourceSet) (*model.Subscriber, error)
	UpdateInterests(ctx context.Context, id int64, interests model.SourceSet) error
	SetMute(ctx context.Context, id int64, until time.Time) error
	ListAll(ctx context.Context) ([]model.Subscriber, error)

	WasDelivered(ctx context.Context, key string) (bool, error)
	MarkDelivered(ctx context.Context, key string, ts time.Time) error
	CountDelivered(ctx context.Context) (int, error)

	Close() error
}
