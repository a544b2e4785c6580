// Package script holds the ordered, verbatim blocks of the assessment: one
// welcome block followed by the eighteen questions.
package script

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
	"gopkg.in/yaml.v3"
)

const (
	// QuestionCount is the number of questions in every assessment.
	QuestionCount = 18
	// BlockCount is the welcome block plus every question.
	BlockCount = QuestionCount + 1
)

// Kind identifies what a block holds.
type Kind string

const (
	KindWelcome  Kind = "welcome"
	KindQuestion Kind = "question"
)

// Block is one verbatim unit of assessment text.
type Block struct {
	// Index is the position in delivery order, 0 for the welcome.
	Index int
	Kind  Kind
	// Number is the question number (1..18), zero for the welcome.
	Number int
	Text   string
}

// Catalog is the immutable ordered list of blocks.
type Catalog struct {
	blocks []Block
}

type scriptFile struct {
	Welcome   string `yaml:"welcome"`
	Questions []struct {
		Number int    `yaml:"number"`
		Text   string `yaml:"text"`
	} `yaml:"questions"`
}

//go:embed default_script.yaml
var defaultScript []byte

var defaultCatalog = mustLoad(defaultScript)

// Default returns the catalog built from the embedded script.
func Default() *Catalog {
	return defaultCatalog
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return Load(data)
}

// Load parses and validates a YAML script.
func Load(data []byte) (*Catalog, error) {
	var file scriptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeScriptInvalid, "decode script", err)
	}

	welcome := strings.TrimSpace(file.Welcome)
	if welcome == "" {
		return nil, apperrors.New(apperrors.CodeScriptInvalid, "welcome block is required")
	}
	if len(file.Questions) != QuestionCount {
		return nil, apperrors.New(apperrors.CodeScriptInvalid,
			fmt.Sprintf("script has %d questions, want %d", len(file.Questions), QuestionCount))
	}

	blocks := make([]Block, 0, BlockCount)
	blocks = append(blocks, Block{Index: 0, Kind: KindWelcome, Text: welcome})
	for i, question := range file.Questions {
		want := i + 1
		if question.Number != want {
			return nil, apperrors.New(apperrors.CodeScriptInvalid,
				fmt.Sprintf("question at position %d is numbered %d", want, question.Number))
		}
		text := strings.TrimSpace(question.Text)
		if text == "" {
			return nil, apperrors.New(apperrors.CodeScriptInvalid,
				fmt.Sprintf("question %d has no text", want))
		}
		blocks = append(blocks, Block{Index: want, Kind: KindQuestion, Number: want, Text: text})
	}
	return &Catalog{blocks: blocks}, nil
}

// Len returns the number of blocks.
func (c *Catalog) Len() int {
	return len(c.blocks)
}

// Block returns the block at index in delivery order.
func (c *Catalog) Block(index int) (Block, bool) {
	if index < 0 || index >= len(c.blocks) {
		return Block{}, false
	}
	return c.blocks[index], true
}

// Welcome returns the first block.
func (c *Catalog) Welcome() Block {
	return c.blocks[0]
}

// Question returns question number n (1..18).
func (c *Catalog) Question(n int) (Block, bool) {
	if n < 1 || n > QuestionCount {
		return Block{}, false
	}
	return c.blocks[n], true
}

func mustLoad(data []byte) *Catalog {
	catalog, err := Load(data)
	if err != nil {
		panic(fmt.Sprintf("embedded script: %v", err))
	}
	return catalog
}
