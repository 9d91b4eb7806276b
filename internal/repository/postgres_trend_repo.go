package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/trendradar/internal/model"
)

// PostgresTrendRepo はPostgreSQLを使用したトレンドリポジトリ。
type PostgresTrendRepo struct {
	db *sql.DB
}

// NewPostgresTrendRepo はPostgresTrendRepoを生成する。
func NewPostgresTrendRepo(db *sql.DB) *PostgresTrendRepo {
	return &PostgresTrendRepo{db: db}
}

// trendColumns はSELECTで使用するカラムの並び。Scanの順序と一致させること。
const trendColumns = `id, title, platform, url, views, likes, description,
       category, category_confidence, discovered_at, processed_at`

// UpsertBatch はトレンドをIDで冪等にUPSERTし、書き込んだ件数を返す。
// 1件のINSERT文に全行をまとめ、ON CONFLICTで既存行を上書きする。
// processed_atはサーバー側のnow()で更新される。
func (r *PostgresTrendRepo) UpsertBatch(ctx context.Context, trends []model.ProcessedTrend) (int, error) {
	if len(trends) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO trends (id, title, platform, url, views, likes, description,
	                    category, category_confidence, discovered_at)
	 VALUES `)

	args := make([]interface{}, 0, len(trends)*10)
	for i, trend := range trends {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))
		args = append(args,
			trend.ID, trend.Title, string(trend.Platform), trend.URL,
			trend.Views, trend.Likes, trend.Description,
			trend.Category, trend.CategoryConfidence, trend.DiscoveredAt,
		)
	}

	sb.WriteString(`
	 ON CONFLICT (id) DO UPDATE SET
	    title = EXCLUDED.title,
	    platform = EXCLUDED.platform,
	    url = EXCLUDED.url,
	    views = EXCLUDED.views,
	    likes = EXCLUDED.likes,
	    description = EXCLUDED.description,
	    category = EXCLUDED.category,
	    category_confidence = EXCLUDED.category_confidence,
	    discovered_at = EXCLUDED.discovered_at,
	    processed_at = now()`)

	result, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("トレンドのUPSERTに失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return len(trends), nil
	}
	return int(affected), nil
}

// ListStaleIDs はprocessed_atがolderThanより古いトレンドのIDを最大limit件返す。
func (r *PostgresTrendRepo) ListStaleIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM trends WHERE processed_at < $1 ORDER BY processed_at ASC LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("期限切れトレンドの一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("期限切れトレンドの行読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期限切れトレンドの走査に失敗しました: %w", err)
	}

	return ids, nil
}

// DeleteByIDs は指定IDのトレンドを削除し、削除した件数を返す。
func (r *PostgresTrendRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM trends WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("トレンドの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return int(affected), nil
}

// ListTrends はフィルタ条件に合致するトレンドをprocessed_at降順で返す。
// ゼロ値のフィルタ項目は条件として適用されない。
func (r *PostgresTrendRepo) ListTrends(ctx context.Context, filter TrendFilter) ([]model.ProcessedTrend, error) {
	baseQuery := `SELECT ` + trendColumns + ` FROM trends WHERE 1=1`

	var args []interface{}
	argIndex := 1

	if filter.Category != "" {
		baseQuery += fmt.Sprintf(" AND category = $%d", argIndex)
		args = append(args, filter.Category)
		argIndex++
	}
	if filter.Platform != "" {
		baseQuery += fmt.Sprintf(" AND platform = $%d", argIndex)
		args = append(args, filter.Platform)
		argIndex++
	}
	if !filter.Since.IsZero() {
		baseQuery += fmt.Sprintf(" AND processed_at >= $%d", argIndex)
		args = append(args, filter.Since)
		argIndex++
	}

	baseQuery += fmt.Sprintf(" ORDER BY processed_at DESC LIMIT $%d", argIndex)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("トレンド一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var trends []model.ProcessedTrend
	for rows.Next() {
		var trend model.ProcessedTrend
		var platform string
		var views, likes sql.NullInt64

		if err := rows.Scan(
			&trend.ID, &trend.Title, &platform, &trend.URL, &views, &likes,
			&trend.Description, &trend.Category, &trend.CategoryConfidence,
			&trend.DiscoveredAt, &trend.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("トレンド行の読み取りに失敗しました: %w", err)
		}

		trend.Platform = model.Platform(platform)
		if views.Valid {
			trend.Views = &views.Int64
		}
		if likes.Valid {
			trend.Likes = &likes.Int64
		}

		trends = append(trends, trend)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("トレンド一覧の走査に失敗しました: %w", err)
	}

	return trends, nil
}

// compile-time interface check
var _ TrendRepository = (*PostgresTrendRepo)(nil)
