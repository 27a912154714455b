package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gregrebin/cihat-bot/internal/config"
	"github.com/gregrebin/cihat-bot/internal/market"
)

// Store 是基于 SQLite 的本地行情缓存。连接器拉到的K线落盘后，
// 重启时交易器可以直接回填，不必等交易所补齐历史。
type Store struct {
	db *sql.DB
}

const candleSchema = `
CREATE TABLE IF NOT EXISTS candles (
	exchange TEXT    NOT NULL,
	symbol   TEXT    NOT NULL,
	interval TEXT    NOT NULL,
	ts       INTEGER NOT NULL,
	open     REAL    NOT NULL,
	high     REAL    NOT NULL,
	low      REAL    NOT NULL,
	close    REAL    NOT NULL,
	volume   REAL    NOT NULL,
	PRIMARY KEY (exchange, symbol, interval, ts)
);
`

// NewSQLite 根据配置初始化 SQLite 存储并确保表结构就绪。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	dsn := cfg.Path
	if cfg.InMemory {
		dsn = ":memory:"
	} else {
		if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("设置 SQLite WAL 模式失败: %w", err)
	}
	if _, err := conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("设置 SQLite 同步级别失败: %w", err)
	}

	if _, err := conn.Exec(candleSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("初始化K线表失败: %w", err)
	}

	return &Store{db: conn}, nil
}

// SaveCandles 批量写入K线，同一时间戳的旧记录被覆盖。
func (s *Store) SaveCandles(ctx context.Context, info market.ChartInfo, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (exchange, symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (exchange, symbol, interval, ts) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer stmt.Close()

	interval := info.Interval.String()
	for _, candle := range candles {
		if _, err := stmt.ExecContext(ctx,
			info.Exchange, info.Symbol, interval, candle.Time.UTC().Unix(),
			candle.Open, candle.High, candle.Low, candle.Close, candle.Volume,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("写入K线失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交K线事务失败: %w", err)
	}
	return nil
}

// LoadCandles 读取最近 limit 根K线，按时间升序返回。
func (s *Store) LoadCandles(ctx context.Context, info market.ChartInfo, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE exchange = ? AND symbol = ? AND interval = ?
		ORDER BY ts DESC
		LIMIT ?
	`, info.Exchange, info.Symbol, info.Interval.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("读取K线失败: %w", err)
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		var ts int64
		var candle market.Candle
		if err := rows.Scan(&ts, &candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume); err != nil {
			return nil, fmt.Errorf("扫描K线记录失败: %w", err)
		}
		candle.Time = time.Unix(ts, 0).UTC()
		candles = append(candles, candle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历K线记录失败: %w", err)
	}

	// 查询按时间倒序取最近 limit 根，返回前翻转为升序。
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}
