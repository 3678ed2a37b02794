package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"replay-tracker/internal/domain"

	"github.com/go-playground/validator/v10"
)

const defaultGameType = "unknown"

// RawPlayer is one untyped player entry as received from an uploader.
type RawPlayer struct {
	PlayerTag     string `json:"player_tag" validate:"required"`
	CharacterName string `json:"character_name" validate:"required"`
	Result        string `json:"result"`
	Port          int    `json:"port"`
	DisplayName   string `json:"display_name"`
}

// RawGame is one untyped game record as received from an uploader.
// StageID is deliberately loose: clients have been observed sending it as
// a number or a numeric string.
type RawGame struct {
	StageID    any         `json:"stage_id"`
	StartTime  string      `json:"start_time" validate:"required"`
	LastFrame  *int64      `json:"last_frame" validate:"required,gte=0"`
	GameType   string      `json:"game_type"`
	PlayerData []RawPlayer `json:"player_data" validate:"required,min=2,max=4,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeJSON decodes a single raw game document and normalizes it.
// A document that is not a JSON object is a validation failure for that
// item, never for its batch siblings.
func NormalizeJSON(data json.RawMessage) (*domain.Game, error) {
	var raw RawGame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed game document: %s", domain.ErrValidation, err)
	}
	return Normalize(raw)
}

// Normalize converts a raw game into a canonical Game draft with defaults
// applied and the fingerprint computed. It is pure: identity, owning
// client and upload date are stamped later by the orchestrator.
func Normalize(raw RawGame) (*domain.Game, error) {
	if err := validate.Struct(raw); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrValidation, describeFieldError(fieldErrs[0]))
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	stageID, ok := coerceInt(raw.StageID)
	if !ok {
		return nil, fmt.Errorf("%w: stage_id missing or not numeric", domain.ErrValidation)
	}

	startTime, err := time.Parse(time.RFC3339, raw.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time is not a valid ISO-8601 timestamp", domain.ErrValidation)
	}

	gameType := raw.GameType
	if gameType == "" {
		gameType = defaultGameType
	}

	players := make([]domain.PlayerEntry, len(raw.PlayerData))
	for i, rp := range raw.PlayerData {
		if strings.TrimSpace(rp.PlayerTag) == "" {
			return nil, fmt.Errorf("%w: player %d has an empty player_tag", domain.ErrValidation, i)
		}
		players[i] = domain.PlayerEntry{
			Tag:           rp.PlayerTag,
			CharacterName: rp.CharacterName,
			Result:        domain.ParseResult(rp.Result),
			Port:          rp.Port,
			DisplayName:   rp.DisplayName,
		}
	}

	game := &domain.Game{
		StartTime: startTime.UTC(),
		LastFrame: int(*raw.LastFrame),
		StageID:   stageID,
		GameType:  gameType,
		Players:   players,
	}
	game.Fingerprint = Fingerprint(game.StartTime, game.LastFrame)

	return game, nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Field() {
	case "PlayerData":
		if fe.Tag() == "min" || fe.Tag() == "max" {
			return "player_data must contain between 2 and 4 players"
		}
		return "player_data is missing or not a list"
	case "StartTime":
		return "start_time is required"
	case "LastFrame":
		if fe.Tag() == "gte" {
			return "last_frame must be non-negative"
		}
		return "last_frame is required"
	case "PlayerTag":
		return "player entry has an empty player_tag"
	case "CharacterName":
		return "player entry has an empty character_name"
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

// coerceInt accepts the value shapes JSON decoding can produce for
// stage_id plus plain Go ints used by in-process callers.
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
