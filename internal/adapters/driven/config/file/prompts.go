package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads LLM prompts from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to embedded defaults.
//
// Files are only created on first Load, not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts. They are also the
// initial content of the files written on first use.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptGroundedAnswer: `You answer questions using only the numbered passages below. They come from the user's own documents and email.
Cite every fact with the passage number in square brackets, for example [2].
If the passages do not contain the answer, say that you could not find it. Do not guess.

Passages:
%s

Question: %s
Answer:`,

	driven.PromptFollowUp: `This question follows an earlier exchange.

Earlier question: %s
Earlier answer: %s
`,
}

// placeholders is the number of %s verbs each prompt must keep.
var placeholders = map[string]int{
	driven.PromptGroundedAnswer: 2,
	driven.PromptFollowUp:       2,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.vellum/prompts/.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".vellum", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// Falls back to the embedded default when the file is missing or has
// lost its placeholders.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	prompt, err := s.loadFromFile(name)
	if err == nil {
		if want, ok := placeholders[name]; ok && strings.Count(prompt, "%s") != want {
			logger.Warn("prompt %s.txt needs %d %%s placeholders, using default", name, want)
			err = fmt.Errorf("prompt %q has wrong placeholders", name)
		}
	}
	if err != nil {
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Double-check so a concurrent load is not overwritten.
	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk. Trailing whitespace is trimmed;
// leading whitespace is kept since the follow-up prompt is a prefix.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), " \t\r\n") + trailingNewline(name), nil
}

// trailingNewline keeps the follow-up prefix separated from the prompt
// it is prepended to.
func trailingNewline(name string) string {
	if name == driven.PromptFollowUp {
		return "\n"
	}
	return ""
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	content := `# Vellum Prompts

These templates control how vellum asks the local model to answer.

## Files

- ` + "`grounded_answer.txt`" + ` - Answers a question from numbered passages.
  First ` + "`%s`" + ` is the passages, second is the question.
- ` + "`follow_up.txt`" + ` - Prepended for follow-up questions.
  First ` + "`%s`" + ` is the earlier question, second is the earlier answer.

Keep both ` + "`%s`" + ` placeholders. A file without them is ignored and
the built-in prompt is used instead. Changes apply to the next command.
`
	return os.WriteFile(path, []byte(content), 0600)
}
