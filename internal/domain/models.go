package domain

import (
	"time"
)

// Result is the outcome of a game from one player's perspective.
type Result string

const (
	ResultWin     Result = "Win"
	ResultLoss    Result = "Loss"
	ResultUnknown Result = "Unknown"
)

// ParseResult maps a raw result string to a Result, defaulting to Unknown
// for absent or unrecognized values.
func ParseResult(s string) Result {
	switch s {
	case string(ResultWin):
		return ResultWin
	case string(ResultLoss):
		return ResultLoss
	default:
		return ResultUnknown
	}
}

// PlayerEntry is one participant of a game. Tag has the form NAME#CODE and
// is treated as an opaque, case-sensitive key.
type PlayerEntry struct {
	Tag           string
	CharacterName string
	Result        Result
	Port          int
	DisplayName   string
}

type Game struct {
	ID          string // uuid, server-assigned
	ClientID    string
	Fingerprint string
	StartTime   time.Time
	LastFrame   int
	StageID     int
	GameType    string
	Players     []PlayerEntry
	UploadDate  time.Time
}

// Self returns the entry matching tag (exact, case-sensitive).
func (g *Game) Self(tag string) (PlayerEntry, bool) {
	for _, p := range g.Players {
		if p.Tag == tag {
			return p, true
		}
	}
	return PlayerEntry{}, false
}

// Opponent returns the other entry when the game has exactly two players
// and one of them carries tag. Ok is false otherwise.
func (g *Game) Opponent(tag string) (PlayerEntry, bool) {
	if len(g.Players) != 2 {
		return PlayerEntry{}, false
	}
	for i, p := range g.Players {
		if p.Tag == tag {
			return g.Players[1-i], true
		}
	}
	return PlayerEntry{}, false
}

type Client struct {
	ID               string
	Hostname         string
	Platform         string
	Version          string
	APIKeyDigest     string
	RegistrationDate time.Time
	LastActive       time.Time
}
