package database

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SetStats is the aggregate view of one set's media rows.
type SetStats struct {
	ImageCount int
	VideoCount int
	TotalSize  int64
}

// RecomputeSetAggregates rewrites the cached counters of a set from the media
// table in one statement, so concurrent recomputes for the same set never
// interleave a read and a write.
func RecomputeSetAggregates(db Querier, setID uint) error {
	queryBuilder := psql.Update("sets").
		Set("image_count", sq.Expr("(SELECT COUNT(*) FROM media WHERE set_id = ? AND kind = ?)", setID, "image")).
		Set("video_count", sq.Expr("(SELECT COUNT(*) FROM media WHERE set_id = ? AND kind = ?)", setID, "video")).
		Set("total_size", sq.Expr("(SELECT COALESCE(SUM(size), 0) FROM media WHERE set_id = ?)", setID)).
		Set("updated_at", time.Now().Unix()).
		Where(sq.Eq{"id": setID})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for RecomputeSetAggregates: %w", err)
	}

	if _, err := db.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("failed to recompute aggregates for set %d: %w", setID, err)
	}
	return nil
}

// GetSetStats computes the aggregates without persisting them.
func GetSetStats(db Querier, setID uint) (SetStats, error) {
	var stats SetStats
	queryBuilder := psql.Select(
		"COALESCE(SUM(CASE WHEN kind = 'image' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN kind = 'video' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(size), 0)",
	).From("media").
		Where(sq.Eq{"set_id": setID})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return SetStats{}, fmt.Errorf("failed to build SQL query for GetSetStats: %w", err)
	}

	err = db.QueryRow(sqlStr, args...).Scan(&stats.ImageCount, &stats.VideoCount, &stats.TotalSize)
	if err != nil {
		return SetStats{}, fmt.Errorf("failed to query set stats for %d: %w", setID, err)
	}
	return stats, nil
}

// NextSortOrder returns the first free sort slot of a set (0 for an empty set).
func NextSortOrder(db Querier, setID uint) (int, error) {
	queryBuilder := psql.Select("COALESCE(MAX(sort_order) + 1, 0)").
		From("media").
		Where(sq.Eq{"set_id": setID})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for NextSortOrder: %w", err)
	}

	var next int
	if err := db.QueryRow(sqlStr, args...).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to query next sort order for set %d: %w", setID, err)
	}
	return next, nil
}
