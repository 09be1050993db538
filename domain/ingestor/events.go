package ingestor

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/r3e-network/culture-arena/infrastructure/ledger"
)

// Topic names identify the three log kinds the ingestor consumes. They occupy
// topics[0] of every Log the Ledger returns.
const (
	TopicArtifactMinted = "ArtifactMinted"
	TopicArtifactCited  = "ArtifactCited"
	TopicRoundFinalized = "RoundFinalized"
)

// artifactMintedPayload is the JSON shape carried in a Log's Data field for
// an ArtifactMinted event.
type artifactMintedPayload struct {
	ID       string  `json:"id"`
	Author   string  `json:"author"`
	Kind     string  `json:"kind"`
	CID      string  `json:"cid"`
	ParentID *string `json:"parentId,omitempty"`
}

type artifactCitedPayload struct {
	FromID string `json:"fromId"`
	ToID   string `json:"toId"`
}

type roundFinalizedPayload struct {
	RoundID            string  `json:"roundId"`
	PreviousDifficulty float64 `json:"previousDifficulty"`
	DifficultyDelta    float64 `json:"difficultyDelta"`
	NewDifficulty      float64 `json:"newDifficulty"`
}

func logTopic(l ledger.Log) (string, error) {
	if len(l.Topics) == 0 {
		return "", fmt.Errorf("log has no topics")
	}
	return l.Topics[0], nil
}

func decodeLogData(l ledger.Log, out interface{}) error {
	raw := strings.TrimPrefix(l.Data, "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("decode log data hex: %w", err)
	}
	if err := json.Unmarshal(decoded, out); err != nil {
		return fmt.Errorf("unmarshal log payload: %w", err)
	}
	return nil
}
