package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// CertificateSequenceRepository allocates certificate serials from Postgres.
// Each call is a single atomic upsert so numbers are never reused.
type CertificateSequenceRepository struct {
	db *sqlx.DB
}

// NewCertificateSequenceRepository constructs the Postgres-backed sequence.
func NewCertificateSequenceRepository(db *sqlx.DB) *CertificateSequenceRepository {
	return &CertificateSequenceRepository{db: db}
}

// Next returns the next serial for (institution, year), starting at 1.
func (r *CertificateSequenceRepository) Next(ctx context.Context, institution string, year int) (int64, error) {
	const query = `INSERT INTO certificate_sequences (institution, year, value)
	VALUES ($1, $2, 1)
	ON CONFLICT (institution, year) DO UPDATE SET value = certificate_sequences.value + 1
	RETURNING value`
	var value int64
	if err := r.db.QueryRowxContext(ctx, query, institution, year).Scan(&value); err != nil {
		return 0, fmt.Errorf("next certificate sequence: %w", err)
	}
	return value, nil
}

// RedisCertificateSequence allocates serials with INCR. Used when several
// deployments share one Redis and Postgres is partitioned per tenant.
type RedisCertificateSequence struct {
	client redis.Cmdable
}

// NewRedisCertificateSequence constructs the Redis-backed sequence.
func NewRedisCertificateSequence(client redis.Cmdable) *RedisCertificateSequence {
	return &RedisCertificateSequence{client: client}
}

// Next returns the next serial for (institution, year), starting at 1.
func (r *RedisCertificateSequence) Next(ctx context.Context, institution string, year int) (int64, error) {
	key := fmt.Sprintf("certseq:%s:%d", institution, year)
	value, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return value, nil
}
