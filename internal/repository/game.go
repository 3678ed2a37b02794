package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"replay-tracker/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type GameRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGameRepository(sqlDB *sql.DB, logger zerolog.Logger) *GameRepository {
	return &GameRepository{db: sqlDB, logger: logger}
}

// gameSelect returns one row per player entry; collectGames groups them
// back into games. Callers append WHERE/ORDER BY clauses that keep rows of
// the same game adjacent and players in position order.
const gameSelect = `
SELECT g.id, g.client_id, g.fingerprint, g.start_time, g.last_frame, g.stage_id, g.game_type, g.upload_date,
       p.player_tag, p.character_name, p.result, p.port, p.display_name
FROM games g
JOIN game_players p ON p.game_id = g.id`

func collectGames(rows *sql.Rows) ([]domain.Game, error) {
	var games []domain.Game
	index := make(map[string]int)

	for rows.Next() {
		var g domain.Game
		var p domain.PlayerEntry
		var result string
		if err := rows.Scan(
			&g.ID, &g.ClientID, &g.Fingerprint, &g.StartTime, &g.LastFrame,
			&g.StageID, &g.GameType, &g.UploadDate,
			&p.Tag, &p.CharacterName, &result, &p.Port, &p.DisplayName,
		); err != nil {
			return nil, err
		}
		p.Result = domain.ParseResult(result)

		i, ok := index[g.ID]
		if !ok {
			i = len(games)
			index[g.ID] = i
			games = append(games, g)
		}
		games[i].Players = append(games[i].Players, p)
	}
	return games, rows.Err()
}

func (r *GameRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.Game, error) {
	rows, err := r.db.QueryContext(ctx, gameSelect+`
		WHERE g.fingerprint = ?
		ORDER BY p.position`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query game by fingerprint: %w", err)
	}
	defer rows.Close()

	games, err := collectGames(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan game by fingerprint: %w", err)
	}
	if len(games) == 0 {
		return nil, nil
	}
	return &games[0], nil
}

// Insert writes the game row and its player entries in one transaction.
// A fingerprint collision is reported as AlreadyExists, not as an error,
// so a lost check-then-insert race still counts as a duplicate.
func (r *GameRepository) Insert(ctx context.Context, game *domain.Game) (domain.InsertResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inserted, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (id, client_id, fingerprint, start_time, last_frame, stage_id, game_type, upload_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		game.ID, game.ClientID, game.Fingerprint, game.StartTime, game.LastFrame,
		game.StageID, game.GameType, game.UploadDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Debug().
				Str("fingerprint", game.Fingerprint).
				Str("client_id", game.ClientID).
				Msg("fingerprint already stored")
			return domain.AlreadyExists, nil
		}
		return domain.Inserted, fmt.Errorf("failed to insert game: %w", err)
	}

	for position, p := range game.Players {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO game_players (game_id, position, player_tag, character_name, result, port, display_name)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			game.ID, position, p.Tag, p.CharacterName, string(p.Result), p.Port, p.DisplayName,
		)
		if err != nil {
			return domain.Inserted, fmt.Errorf("failed to insert player entry %d of game %s: %w", position, game.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Inserted, fmt.Errorf("failed to commit game insert: %w", err)
	}
	return domain.Inserted, nil
}

func (r *GameRepository) SelectByPlayerTag(ctx context.Context, tag string) ([]domain.Game, error) {
	rows, err := r.db.QueryContext(ctx, gameSelect+`
		WHERE g.id IN (SELECT game_id FROM game_players WHERE player_tag = ?)
		ORDER BY g.start_time DESC, g.id, p.position`, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query games by player tag: %w", err)
	}
	defer rows.Close()

	games, err := collectGames(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan games by player tag: %w", err)
	}
	return games, nil
}

func (r *GameRepository) SelectRecent(ctx context.Context, limit int) ([]domain.Game, error) {
	rows, err := r.db.QueryContext(ctx, gameSelect+`
		WHERE g.id IN (SELECT id FROM games ORDER BY start_time DESC LIMIT ?)
		ORDER BY g.start_time DESC, g.id, p.position`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent games: %w", err)
	}
	defer rows.Close()

	games, err := collectGames(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent games: %w", err)
	}
	return games, nil
}

func (r *GameRepository) CountGames(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count games: %w", err)
	}
	return count, nil
}

func (r *GameRepository) CountDistinctPlayerTags(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT player_tag) FROM game_players`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct player tags: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
