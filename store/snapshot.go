// Package store keeps live sessions in memory and persists workspace snapshots.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/fabfab/codemind/chat"
	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/llm"
)

// Snapshot is the persisted workspace: every session, the active one and the
// selected model id.
type Snapshot struct {
	Sessions        []chat.SessionState `json:"sessions"`
	ActiveSessionID string              `json:"activeSessionId"`
	SelectedModel   string              `json:"selectedModel"`
}

// rawSnapshot also accepts the key names of older snapshots.
type rawSnapshot struct {
	Sessions        []json.RawMessage `json:"sessions"`
	Chats           []json.RawMessage `json:"chats"`
	ActiveSessionID string            `json:"activeSessionId"`
	ActiveChatID    string            `json:"activeChatId"`
	SelectedModel   string            `json:"selectedModel"`
	Model           string            `json:"model"`
}

type legacySession struct {
	chat.SessionState
	Grounding       json.RawMessage `json:"groundingOptions"`
	GroundingSource *string         `json:"groundingSource"`
}

type groundingFields struct {
	UseCorpus       *bool `json:"useCorpus"`
	UseCloud        *bool `json:"useCloud"`
	UseLocal        *bool `json:"useLocal"`
	UsePreloaded    *bool `json:"usePreloaded"`
	UseGraph        bool  `json:"useGraph"`
	UseWebSearch    bool  `json:"useWebSearch"`
	UseGoogleSearch bool  `json:"useGoogleSearch"`
	UseMaps         bool  `json:"useMaps"`
	UseGoogleMaps   bool  `json:"useGoogleMaps"`
}

// Decode parses a snapshot, migrating older layouts. Sessions without source
// toggles get them synthesised from the legacy groundingSource flag, or the
// primary corpus alone when there is none. A missing or unknown active id
// selects the first session and an unknown model selects the catalog default.
func Decode(data []byte, catalog llm.Catalog) (Snapshot, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	sessions := raw.Sessions
	if sessions == nil {
		sessions = raw.Chats
	}

	snap := Snapshot{
		Sessions:        make([]chat.SessionState, 0, len(sessions)),
		ActiveSessionID: firstNonEmpty(raw.ActiveSessionID, raw.ActiveChatID),
		SelectedModel:   firstNonEmpty(raw.SelectedModel, raw.Model),
	}
	for i, rawSession := range sessions {
		state, err := decodeSession(rawSession)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode session %d: %w", i, err)
		}
		snap.Sessions = append(snap.Sessions, state)
	}

	if !hasSession(snap.Sessions, snap.ActiveSessionID) {
		snap.ActiveSessionID = ""
		if len(snap.Sessions) > 0 {
			snap.ActiveSessionID = snap.Sessions[0].ID
		}
	}
	if !catalog.Has(snap.SelectedModel) {
		snap.SelectedModel = catalog.Default().ID
	}
	return snap, nil
}

func decodeSession(data json.RawMessage) (chat.SessionState, error) {
	var legacy legacySession
	if err := json.Unmarshal(data, &legacy); err != nil {
		return chat.SessionState{}, err
	}

	state := legacy.SessionState
	if state.Dataset == nil {
		state.Dataset = []corpus.Entry{}
	}

	switch {
	case len(legacy.Grounding) > 0 && string(legacy.Grounding) != "null":
		var fields groundingFields
		if err := json.Unmarshal(legacy.Grounding, &fields); err != nil {
			return chat.SessionState{}, fmt.Errorf("decode grounding options: %w", err)
		}
		state.Grounding = fields.grounding()
	case legacy.GroundingSource != nil:
		state.Grounding = migrateGroundingSource(*legacy.GroundingSource, state.DataSource != nil)
	default:
		state.Grounding = corpus.DefaultGrounding()
	}
	return state, nil
}

func (f groundingFields) grounding() corpus.Grounding {
	return corpus.Grounding{
		UseCorpus:    boolOr(f.UseCorpus, f.UseCloud),
		UseLocal:     boolOr(f.UseLocal, f.UsePreloaded),
		UseGraph:     f.UseGraph,
		UseWebSearch: f.UseWebSearch || f.UseGoogleSearch,
		UseMaps:      f.UseMaps || f.UseGoogleMaps,
	}
}

// migrateGroundingSource maps the single-mode flag of older sessions onto
// source toggles.
func migrateGroundingSource(source string, hasDataSource bool) corpus.Grounding {
	return corpus.Grounding{
		UseCorpus: source == "elastic_cloud" || source == "hybrid" || (!hasDataSource && source != "preloaded"),
		UseLocal:  source == "preloaded" || source == "hybrid" || hasDataSource,
	}
}

func boolOr(primary, legacy *bool) bool {
	if primary != nil {
		return *primary
	}
	return legacy != nil && *legacy
}

func hasSession(sessions []chat.SessionState, id string) bool {
	if id == "" {
		return false
	}
	for _, s := range sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
