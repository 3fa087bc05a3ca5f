package homeassistant

import (
	"strings"

	"voice-bridge/internal/application"
	"voice-bridge/internal/domain"
)

const (
	tokenMatchPoints  = 3
	idSubstringPoints = 1
	phrasePoints      = 2
	unavailablePoints = -10
)

// ScoreMatch rates how well query tokens describe an entity: 3 points per
// token found among the entity's name tokens plus 1 per token contained in
// the entity id.
func ScoreMatch(queryTokens []string, entityTokens map[string]struct{}, entityID string) int {
	score := 0
	for _, tok := range queryTokens {
		if _, ok := entityTokens[tok]; ok {
			score += tokenMatchPoints
		}
		if strings.Contains(entityID, tok) {
			score += idSubstringPoints
		}
	}
	return score
}

// query is a search phrase prepared once and scored against many entities.
type query struct {
	phrase string
	tokens []string
}

func newQuery(search string) query {
	return query{
		phrase: strings.ToLower(strings.TrimSpace(search)),
		tokens: application.Tokenize(search),
	}
}

// score returns the entity's final score and whether it is a candidate at
// all. Entities that match nothing are never candidates; unavailable ones
// are pushed down but kept.
func (q query) score(e *indexedEntity) (int, bool) {
	raw := ScoreMatch(q.tokens, e.tokens, e.ID)
	if q.phrase != "" && strings.Contains(strings.ToLower(e.DisplayName), q.phrase) {
		raw += phrasePoints
	}
	if raw == 0 {
		return 0, false
	}
	if e.Unavailable() {
		raw += unavailablePoints
	}
	return raw, true
}

// indexedEntity is an entity plus the name tokens used for matching.
type indexedEntity struct {
	domain.Entity
	tokens map[string]struct{}
}

func indexEntity(e domain.Entity) *indexedEntity {
	source := e.DisplayName
	if source == "" {
		source = e.ID
	}
	words := application.Tokenize(source)
	tokens := make(map[string]struct{}, len(words))
	for _, w := range words {
		tokens[w] = struct{}{}
	}
	return &indexedEntity{Entity: e, tokens: tokens}
}
