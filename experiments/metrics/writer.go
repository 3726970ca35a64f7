package metrics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type AgentConfig struct {
	ID          int
	Iterations  int
	Exploration float64
	Guided      bool
}

type GameRecord struct {
	ID     int
	Agent1 int // AgentConfig.ID
	Agent2 int // AgentConfig.ID
	GameMetric
}

type MoveRecord struct {
	Game int // GameRecord.ID
	MoveMetric
}

// GenerationRecord summarises one self-play, training and evaluation cycle.
type GenerationRecord struct {
	Cycle           int
	Challenger      string
	Teacher         string
	Generation      int
	SelfPlayGames   int
	FailedGames     int
	BufferSize      int
	TrainingSteps   int
	PolicyError     float64
	ValueError      float64
	ChallengerBest  float64
	ChallengerWorst float64
	TeacherWorst    float64
	Margin          float64
	Outcome         string
	Lives           int
	Duration        time.Duration
}

type Writer struct {
	baseDir string
}

func NewWriter(baseDir string) (*Writer, error) {
	err := os.MkdirAll(baseDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Writer{
		baseDir: baseDir,
	}, nil
}

func (w *Writer) Dir() string {
	return w.baseDir
}

func (w *Writer) WriteAgentConfigs(configs []AgentConfig) error {
	rows := make([][]string, 0, len(configs))
	for _, config := range configs {
		rows = append(rows, []string{
			strconv.Itoa(config.ID),
			strconv.Itoa(config.Iterations),
			strconv.FormatFloat(config.Exploration, 'f', -1, 64),
			strconv.FormatBool(config.Guided),
		})
	}
	header := []string{"id", "iterations", "exploration", "guided"}
	return w.write("agent_configs.csv", "agent configs", header, rows)
}

func (w *Writer) WriteGameRecords(records []GameRecord) error {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			strconv.Itoa(record.ID),
			strconv.Itoa(record.Agent1),
			strconv.Itoa(record.Agent2),
			strconv.Itoa(record.StartingPlayer),
			strconv.Itoa(record.Winner),
			record.StartTime.Format(time.RFC3339),
			record.EndTime.Format(time.RFC3339),
			record.Duration.String(),
			strconv.Itoa(record.TotalMoves),
		})
	}
	header := []string{"id", "agent1", "agent2", "starting_player", "winner", "start_time", "end_time", "duration", "total_moves"}
	return w.write("game_records.csv", "game records", header, rows)
}

func (w *Writer) WriteMoveRecords(records []MoveRecord) error {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			strconv.Itoa(record.Game),
			strconv.Itoa(record.Step),
			strconv.Itoa(record.Player),
			strconv.Itoa(record.Column),
			record.Duration.String(),
			strconv.Itoa(record.Episodes),
			strconv.Itoa(record.FullPlayouts),
			strconv.FormatBool(record.IsTreeReused),
		})
	}
	header := []string{"game", "step", "player", "column", "duration", "episodes", "full_playouts", "is_tree_reused"}
	return w.write("move_records.csv", "move records", header, rows)
}

// AppendGenerationRecord adds one row to generations.csv, writing the header
// when the file is new.
func (w *Writer) AppendGenerationRecord(record GenerationRecord) error {
	path := filepath.Join(w.baseDir, "generations.csv")
	_, err := os.Stat(path)
	isNew := errors.Is(err, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open generations file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if isNew {
		header := []string{
			"cycle", "challenger", "teacher", "generation", "self_play_games", "failed_games",
			"buffer_size", "training_steps", "policy_error", "value_error", "challenger_best",
			"challenger_worst", "teacher_worst", "margin", "outcome", "lives", "duration",
		}
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write generations header: %w", err)
		}
	}

	row := []string{
		strconv.Itoa(record.Cycle),
		record.Challenger,
		record.Teacher,
		strconv.Itoa(record.Generation),
		strconv.Itoa(record.SelfPlayGames),
		strconv.Itoa(record.FailedGames),
		strconv.Itoa(record.BufferSize),
		strconv.Itoa(record.TrainingSteps),
		formatFloat(record.PolicyError),
		formatFloat(record.ValueError),
		formatFloat(record.ChallengerBest),
		formatFloat(record.ChallengerWorst),
		formatFloat(record.TeacherWorst),
		formatFloat(record.Margin),
		record.Outcome,
		strconv.Itoa(record.Lives),
		record.Duration.String(),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write generation row: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

func (w *Writer) write(name, what string, header []string, rows [][]string) error {
	path := filepath.Join(w.baseDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s file: %w", what, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	err = writer.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write %s header: %w", what, err)
	}

	for _, row := range rows {
		err = writer.Write(row)
		if err != nil {
			return fmt.Errorf("failed to write %s row: %w", what, err)
		}
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
