// Package stats turns a set of persisted games into per-player derived
// metrics. Everything here is pure: the same game set always produces the
// same view.
package stats

import (
	"math"
	"sort"
	"strconv"

	"replay-tracker/internal/domain"
)

// UnknownCategory is the sentinel for opponents of non-1v1 games and for
// mostUsedCharacter when a player has no games.
const UnknownCategory = "Unknown"

// CategoryStats is the tally for one breakdown bucket.
type CategoryStats struct {
	Games   int     `json:"games"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
}

// PlayerStats is the derived view for one player tag. It is recomputed on
// every read, never persisted.
type PlayerStats struct {
	Tag               string                   `json:"tag"`
	TotalGames        int                      `json:"total_games"`
	Wins              int                      `json:"wins"`
	Losses            int                      `json:"losses"`
	WinRate           float64                  `json:"win_rate"`
	Characters        map[string]CategoryStats `json:"character_breakdown"`
	Opponents         map[string]CategoryStats `json:"opponent_breakdown"`
	Stages            map[string]CategoryStats `json:"stage_breakdown"`
	MostUsedCharacter string                   `json:"most_used_character"`
	RecentOpponents   []string                 `json:"recent_opponents"`
}

// tallySet counts games/wins per bucket while remembering first-encounter
// order, since map iteration order cannot provide the deterministic
// tie-break.
type tallySet struct {
	order []string
	byKey map[string]*tally
}

type tally struct {
	games int
	wins  int
}

func newTallySet() *tallySet {
	return &tallySet{byKey: make(map[string]*tally)}
}

func (s *tallySet) add(key string, won bool) {
	t, ok := s.byKey[key]
	if !ok {
		t = &tally{}
		s.byKey[key] = t
		s.order = append(s.order, key)
	}
	t.games++
	if won {
		t.wins++
	}
}

func (s *tallySet) result() map[string]CategoryStats {
	out := make(map[string]CategoryStats, len(s.byKey))
	for key, t := range s.byKey {
		out[key] = CategoryStats{
			Games:   t.games,
			Wins:    t.wins,
			WinRate: winRate(t.wins, t.games),
		}
	}
	return out
}

// mostUsed returns the key with the highest game count. Ties go to the key
// encountered first while scanning games in their given order.
func (s *tallySet) mostUsed() string {
	best := UnknownCategory
	bestGames := 0
	for _, key := range s.order {
		if s.byKey[key].games > bestGames {
			best = key
			bestGames = s.byKey[key].games
		}
	}
	return best
}

// Aggregate computes the stats view for tag over games. Tag matching is
// exact and case-sensitive. Games where the tag does not resolve to a
// player entry are skipped, never fatal. An empty input yields a zeroed
// view rather than an error; the caller decides whether that is "not
// found".
func Aggregate(games []domain.Game, tag string, recentLimit int) PlayerStats {
	characters := newTallySet()
	opponents := newTallySet()
	stages := newTallySet()

	var total, wins, losses int

	for i := range games {
		g := &games[i]
		self, ok := g.Self(tag)
		if !ok {
			continue
		}

		won := self.Result == domain.ResultWin
		total++
		if won {
			wins++
		} else if self.Result == domain.ResultLoss {
			losses++
		}

		characters.add(self.CharacterName, won)
		opponents.add(opponentKey(g, tag), won)
		stages.add(strconv.Itoa(g.StageID), won)
	}

	return PlayerStats{
		Tag:               tag,
		TotalGames:        total,
		Wins:              wins,
		Losses:            losses,
		WinRate:           winRate(wins, total),
		Characters:        characters.result(),
		Opponents:         opponents.result(),
		Stages:            stages.result(),
		MostUsedCharacter: characters.mostUsed(),
		RecentOpponents:   recentOpponents(games, tag, recentLimit),
	}
}

// recentOpponents walks games by descending start time and collects the
// first recentLimit distinct opponent keys. Repeat opponents keep their
// most recent position only.
func recentOpponents(games []domain.Game, tag string, recentLimit int) []string {
	if recentLimit <= 0 {
		return []string{}
	}

	ordered := make([]domain.Game, 0, len(games))
	for i := range games {
		if _, ok := games[i].Self(tag); ok {
			ordered = append(ordered, games[i])
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartTime.After(ordered[j].StartTime)
	})

	seen := make(map[string]bool)
	recent := make([]string, 0, recentLimit)
	for i := range ordered {
		key := opponentKey(&ordered[i], tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		recent = append(recent, key)
		if len(recent) == recentLimit {
			break
		}
	}
	return recent
}

// opponentKey resolves "the opponent" of tag in g: the other entry when
// exactly two players are present, the Unknown sentinel otherwise.
func opponentKey(g *domain.Game, tag string) string {
	if opp, ok := g.Opponent(tag); ok {
		return opp.Tag
	}
	return UnknownCategory
}

// winRate is wins over games as a percentage with one-decimal rounding.
// Zero games means zero, never a division.
func winRate(wins, games int) float64 {
	if games == 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(games)*1000) / 10
}
