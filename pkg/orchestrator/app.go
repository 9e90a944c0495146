package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// PromptFile is the decoded shape of the --prompt-file JSON document:
// character/user framing plus a system prompt template.
type PromptFile struct {
	Char            string `json:"char"`
	User            string `json:"user"`
	CharDescription string `json:"char_description"`
	UserDescription string `json:"user_description"`
	Scenario        string `json:"scenario"`
	SystemPrompt    string `json:"system_prompt"`
}

// LoadPromptFile reads and decodes a prompt file. A missing or malformed
// file is a ConfigError, fatal at startup per the error handling design.
func LoadPromptFile(path string) (*PromptFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading prompt file %s: %v", ErrConfig, path, err)
	}
	var pf PromptFile
	if err := json.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("%w: parsing prompt file %s: %v", ErrConfig, path, err)
	}
	return &pf, nil
}

// Render substitutes {char}, {user}, {char_description}, {user_description},
// {scenario}, and {valid_emotions_str} placeholders into SystemPrompt.
// validEmotions are rendered as "[emotion1], [emotion2], …".
func (p *PromptFile) Render(validEmotionsList []string) string {
	bracketed := make([]string, len(validEmotionsList))
	for i, e := range validEmotionsList {
		bracketed[i] = "[" + e + "]"
	}
	replacer := strings.NewReplacer(
		"{char}", p.Char,
		"{user}", p.User,
		"{char_description}", p.CharDescription,
		"{user_description}", p.UserDescription,
		"{scenario}", p.Scenario,
		"{valid_emotions_str}", strings.Join(bracketed, ", "),
	)
	return replacer.Replace(p.SystemPrompt)
}

// TTSConfigFile is the decoded shape of the --tts-config JSON document.
type TTSConfigFile struct {
	ReferencesFolder string `json:"references_folder"`
	DbgLog           bool   `json:"dbg_log"`
	UseLocalModel    bool   `json:"use_local_model,omitempty"`
	SpecificModel    string `json:"specific_model,omitempty"`
	LocalModelsPath  string `json:"local_models_path,omitempty"`
}

// LoadTTSConfig reads and decodes a TTS config file, then verifies that
// neutral.wav exists under ReferencesFolder, which is mandatory.
func LoadTTSConfig(path string) (*TTSConfigFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tts config %s: %v", ErrConfig, path, err)
	}
	var cfg TTSConfigFile
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing tts config %s: %v", ErrConfig, path, err)
	}
	neutral := cfg.ReferencesFolder + string(os.PathSeparator) + "neutral.wav"
	if !fileExists(neutral) {
		return nil, fmt.Errorf("%w: missing mandatory neutral.wav under %s", ErrConfig, cfg.ReferencesFolder)
	}
	return &cfg, nil
}

// App bundles a fully-wired session's subsystems. Shutdown only moves the
// turn orchestrator to ShuttingDown; it does not stop or close the other
// subsystems.
type App struct {
	Conversation *Conversation
	Ctrl         *BargeController
	Metrics      *Metrics
	Logger       Logger

	turn *TurnOrchestrator
}

// NewApp constructs an App from already-wired collaborators.
func NewApp(conv *Conversation, ctrl *BargeController, metrics *Metrics, logger Logger, turn *TurnOrchestrator) *App {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &App{Conversation: conv, Ctrl: ctrl, Metrics: metrics, Logger: logger, turn: turn}
}

// Turn returns the App's TurnOrchestrator.
func (a *App) Turn() *TurnOrchestrator { return a.turn }

// Shutdown requests the turn orchestrator stop accepting new turns. It
// does not block on any in-flight turn; callers that need a join should
// wait on the goroutine driving RunTurn themselves.
func (a *App) Shutdown() {
	a.turn.Shutdown()
}
