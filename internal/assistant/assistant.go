// Package assistant answers questions about the school data with an
// Anthropic model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/export"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

// ErrNoAPIKey is returned when no API key is available.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY is not set")

const systemPrompt = `You help the administration of a junior high school (SMP) in Indonesia.
You are given the teacher workload table, the teacher leave list and the
school calendar. Answer in the language of the question, briefly, using only
the data provided. Say so when the data does not answer the question.`

// Config holds configuration for the assistant.
type Config struct {
	// APIKey for the Anthropic API (default: $ANTHROPIC_API_KEY)
	APIKey string

	// Model to ask (default: claude-sonnet-4-5)
	Model string

	// MaxTokens bounds the answer (default: 1024)
	MaxTokens int64

	// BaseURL overrides the API location
	BaseURL string

	// Logger for request activity
	Logger *log.Logger
}

// Assistant sends questions with the document as context.
type Assistant struct {
	client anthropic.Client
	cfg    Config
}

// New creates an Assistant. It fails with ErrNoAPIKey when neither cfg nor
// the environment carries a key.
func New(cfg Config) (*Assistant, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[assistant] ", log.LstdFlags)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Assistant{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

// writeTable renders rows as a tab separated table with a header line.
func writeTable(b *strings.Builder, title string, rows []remote.Row) {
	fmt.Fprintf(b, "## %s (%d rows)\n", title, len(rows))
	if len(rows) == 0 {
		b.WriteString("(empty)\n\n")
		return
	}
	cols := rows[0].Columns()
	b.WriteString(strings.Join(cols, "\t"))
	b.WriteByte('\n')
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			v, _ := row.Get(c)
			cells[i] = fmt.Sprint(v)
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}

// Context renders the parts of doc the assistant sees.
func Context(doc document.Document) (string, error) {
	tables, err := export.Build(doc)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	writeTable(&b, export.TableTeachers, tables[export.TableTeachers])
	writeTable(&b, export.TableLeaves, tables[export.TableLeaves])
	writeTable(&b, export.TableCalendar, tables[export.TableCalendar])
	fmt.Fprintf(&b, "Students: %d\n", len(tables[export.TableStudents]))
	return b.String(), nil
}

// Ask sends question with doc as context and returns the text answer.
func (a *Assistant) Ask(ctx context.Context, doc document.Document, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question is empty")
	}
	data, err := Context(doc)
	if err != nil {
		return "", fmt.Errorf("failed to build context: %w", err)
	}

	a.cfg.Logger.Printf("Asking %s (%d bytes of context)", a.cfg.Model, len(data))
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(data + "\nQuestion: " + question)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to ask assistant: %w", err)
	}

	var answer strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			answer.WriteString(block.Text)
		}
	}
	if answer.Len() == 0 {
		return "", fmt.Errorf("assistant returned no text")
	}
	return answer.String(), nil
}
