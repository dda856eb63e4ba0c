// Package sqlitestore implements the graph store.Store contract on top
// of the pure-Go modernc.org/sqlite driver, so the whole binary stays
// CGo-free.
package sqlitestore

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dev.aicounsel.server/internal/aierrors"
	"dev.aicounsel.server/internal/graph/store"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store is the modernc.org/sqlite-backed implementation of store.Store.
type Store struct {
	db   *sql.DB
	path string
}

// Open constructs the store at path, creating the parent directory and
// schema if needed, then verifies the result is not a corrupted
// zero-byte artifact. On any initialization failure the connection is
// closed and a zero-byte file it created is removed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, aierrors.NewStoreError("mkdir", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, aierrors.NewStoreError("open", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		cleanupIfEmpty(path)
		return nil, aierrors.NewStoreError("enable foreign keys", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		cleanupIfEmpty(path)
		return nil, aierrors.NewStoreError("read embedded schema", err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		cleanupIfEmpty(path)
		return nil, aierrors.NewStoreError("begin schema transaction", err)
	}
	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			db.Close()
			cleanupIfEmpty(path)
			return nil, aierrors.NewStoreError("apply schema", err)
		}
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		cleanupIfEmpty(path)
		return nil, aierrors.NewStoreError("commit schema transaction", err)
	}

	s := &Store{db: db, path: path}
	if err := s.verifySchema(); err != nil {
		db.Close()
		cleanupIfEmpty(path)
		return nil, err
	}
	return s, nil
}

func cleanupIfEmpty(path string) {
	if path == ":memory:" {
		return
	}
	info, err := os.Stat(path)
	if err == nil && info.Size() == 0 {
		os.Remove(path)
	}
}

func (s *Store) verifySchema() error {
	required := []string{"decisions", "stances", "similarities"}
	for _, table := range required {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			return aierrors.NewStoreError("verify schema", fmt.Errorf("required table %q missing: %w", table, err))
		}
	}
	if s.path != ":memory:" {
		info, err := os.Stat(s.path)
		if err != nil {
			return aierrors.NewStoreError("verify file", err)
		}
		if info.Size() == 0 {
			return aierrors.NewStoreError("verify file", fmt.Errorf("database file is zero bytes"))
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveDecision inserts node inside a transaction, rolling back and
// re-raising on any error.
func (s *Store) SaveDecision(node store.DecisionNode) error {
	participants, err := json.Marshal(node.Participants)
	if err != nil {
		return aierrors.NewStoreError("marshal participants", err)
	}
	metadata, err := json.Marshal(node.Metadata)
	if err != nil {
		return aierrors.NewStoreError("marshal metadata", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return aierrors.NewStoreError("begin save_decision", err)
	}
	_, err = tx.Exec(
		`INSERT INTO decisions (id, question, timestamp, consensus, winning_option, convergence_status, participants, transcript_path, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID, node.Question, node.Timestamp.UTC().Format(time.RFC3339), node.Consensus,
		nullableString(node.WinningOption), node.ConvergenceStatus, string(participants), node.TranscriptPath, string(metadata),
	)
	if err != nil {
		tx.Rollback()
		return aierrors.NewStoreError("save_decision", err)
	}
	if err := tx.Commit(); err != nil {
		return aierrors.NewStoreError("commit save_decision", err)
	}
	return nil
}

// GetDecision returns the decision with the given id, or nil if absent.
func (s *Store) GetDecision(id string) (*store.DecisionNode, error) {
	row := s.db.QueryRow(
		`SELECT id, question, timestamp, consensus, winning_option, convergence_status, participants, transcript_path, metadata
		 FROM decisions WHERE id = ?`, id)
	node, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, aierrors.NewStoreError("get_decision", err)
	}
	return node, nil
}

// ListDecisions returns decisions newest-first, bounded by limit/offset.
func (s *Store) ListDecisions(limit, offset int) ([]store.DecisionNode, error) {
	rows, err := s.db.Query(
		`SELECT id, question, timestamp, consensus, winning_option, convergence_status, participants, transcript_path, metadata
		 FROM decisions ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, aierrors.NewStoreError("list_decisions", err)
	}
	defer rows.Close()

	var out []store.DecisionNode
	for rows.Next() {
		node, err := scanDecisionRows(rows)
		if err != nil {
			return nil, aierrors.NewStoreError("list_decisions scan", err)
		}
		out = append(out, *node)
	}
	return out, rows.Err()
}

// SaveStance inserts stance and returns its generated row id.
func (s *Store) SaveStance(stance store.Stance) (int64, error) {
	var confidence interface{}
	if stance.HasConfidence {
		confidence = stance.Confidence
	}
	res, err := s.db.Exec(
		`INSERT INTO stances (decision_id, participant_id, vote_option, confidence, rationale, final_position)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		stance.DecisionID, stance.ParticipantID, nullableString(stance.VoteOption), confidence,
		nullableString(stance.Rationale), stance.FinalPosition,
	)
	if err != nil {
		return 0, aierrors.NewStoreError("save_stance", err)
	}
	return res.LastInsertId()
}

// GetStances returns every stance for decisionID, ordered by participant.
func (s *Store) GetStances(decisionID string) ([]store.Stance, error) {
	rows, err := s.db.Query(
		`SELECT id, decision_id, participant_id, vote_option, confidence, rationale, final_position
		 FROM stances WHERE decision_id = ? ORDER BY participant_id`, decisionID)
	if err != nil {
		return nil, aierrors.NewStoreError("get_stances", err)
	}
	defer rows.Close()

	var out []store.Stance
	for rows.Next() {
		var st store.Stance
		var voteOption, rationale sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&st.ID, &st.DecisionID, &st.ParticipantID, &voteOption, &confidence, &rationale, &st.FinalPosition); err != nil {
			return nil, aierrors.NewStoreError("get_stances scan", err)
		}
		st.VoteOption = voteOption.String
		st.Rationale = rationale.String
		st.Confidence = confidence.Float64
		st.HasConfidence = confidence.Valid
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveSimilarity upserts edge on (source_id, target_id), clamping the
// score to [0,1] at the boundary.
func (s *Store) SaveSimilarity(edge store.SimilarityEdge) error {
	tx, err := s.db.Begin()
	if err != nil {
		return aierrors.NewStoreError("begin save_similarity", err)
	}
	_, err = tx.Exec(
		`INSERT INTO similarities (source_id, target_id, similarity_score, computed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_id, target_id) DO UPDATE SET similarity_score = excluded.similarity_score, computed_at = excluded.computed_at`,
		edge.SourceID, edge.TargetID, clampScore(edge.SimilarityScore), edge.ComputedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		tx.Rollback()
		return aierrors.NewStoreError("save_similarity", err)
	}
	if err := tx.Commit(); err != nil {
		return aierrors.NewStoreError("commit save_similarity", err)
	}
	return nil
}

// GetSimilar returns decisions similar to decisionID above threshold,
// ordered by score desc and truncated to limit.
func (s *Store) GetSimilar(decisionID string, threshold float64, limit int) ([]store.ScoredNode, error) {
	rows, err := s.db.Query(
		`SELECT d.id, d.question, d.timestamp, d.consensus, d.winning_option, d.convergence_status, d.participants, d.transcript_path, d.metadata, s.similarity_score
		 FROM similarities s JOIN decisions d ON d.id = s.target_id
		 WHERE s.source_id = ? AND s.similarity_score >= ?
		 ORDER BY s.similarity_score DESC LIMIT ?`,
		decisionID, threshold, limit,
	)
	if err != nil {
		return nil, aierrors.NewStoreError("get_similar", err)
	}
	defer rows.Close()

	var out []store.ScoredNode
	for rows.Next() {
		var node store.DecisionNode
		var winningOption sql.NullString
		var timestamp, participantsJSON, metadataJSON string
		var score float64
		if err := rows.Scan(&node.ID, &node.Question, &timestamp, &node.Consensus, &winningOption,
			&node.ConvergenceStatus, &participantsJSON, &node.TranscriptPath, &metadataJSON, &score); err != nil {
			return nil, aierrors.NewStoreError("get_similar scan", err)
		}
		node.WinningOption = winningOption.String
		if parsed, err := time.Parse(time.RFC3339, timestamp); err == nil {
			node.Timestamp = parsed
		}
		_ = json.Unmarshal([]byte(participantsJSON), &node.Participants)
		_ = json.Unmarshal([]byte(metadataJSON), &node.Metadata)
		out = append(out, store.ScoredNode{Node: node, Score: clampScore(score)})
	}
	return out, rows.Err()
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row *sql.Row) (*store.DecisionNode, error) {
	return scanDecisionGeneric(row)
}

func scanDecisionRows(rows *sql.Rows) (*store.DecisionNode, error) {
	return scanDecisionGeneric(rows)
}

func scanDecisionGeneric(scanner rowScanner) (*store.DecisionNode, error) {
	var node store.DecisionNode
	var winningOption sql.NullString
	var timestamp, participantsJSON, metadataJSON string
	if err := scanner.Scan(&node.ID, &node.Question, &timestamp, &node.Consensus, &winningOption,
		&node.ConvergenceStatus, &participantsJSON, &node.TranscriptPath, &metadataJSON); err != nil {
		return nil, err
	}
	node.WinningOption = winningOption.String
	if parsed, err := time.Parse(time.RFC3339, timestamp); err == nil {
		node.Timestamp = parsed
	}
	_ = json.Unmarshal([]byte(participantsJSON), &node.Participants)
	_ = json.Unmarshal([]byte(metadataJSON), &node.Metadata)
	return &node, nil
}

var _ store.Store = (*Store)(nil)
