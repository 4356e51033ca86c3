package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// ErrAborted signals the user aborted the questionnaire (Ctrl+C).
var ErrAborted = errors.New("config: questionnaire aborted")

// Prompter abstracts the terminal so the questionnaire can be tested
// without one.
type Prompter interface {
	Select(message string, options []string, def string) (string, error)
	Input(message, def string, validate func(string) error) (string, error)
}

// SurveyPrompter prompts on the controlling terminal.
type SurveyPrompter struct{}

func (SurveyPrompter) Select(message string, options []string, def string) (string, error) {
	var out string
	prompt := &survey.Select{
		Message: message,
		Options: options,
	}
	if def != "" {
		prompt.Default = def
	}
	if err := survey.AskOne(prompt, &out); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (SurveyPrompter) Input(message, def string, validate func(string) error) (string, error) {
	var out string
	prompt := &survey.Input{
		Message: message,
		Default: def,
	}
	var opts []survey.AskOpt
	if validate != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			s, _ := ans.(string)
			return validate(s)
		}))
	}
	if err := survey.AskOne(prompt, &out, opts...); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

// Questionnaire collects the settings a first run needs.
type Questionnaire struct {
	prompter Prompter
}

// NewQuestionnaire creates a Questionnaire; nil uses SurveyPrompter.
func NewQuestionnaire(p Prompter) *Questionnaire {
	if p == nil {
		p = SurveyPrompter{}
	}
	return &Questionnaire{prompter: p}
}

// Ask prompts for browser, form link and repetitions, starting from base.
// base is not modified.
func (q *Questionnaire) Ask(base *Config) (*Config, error) {
	cfg := *base
	if base.Seed != nil {
		seed := *base.Seed
		cfg.Seed = &seed
	}

	def := cfg.Browser
	if ValidateBrowser(def) != nil {
		def = SupportedBrowsers[0]
	}
	choice, err := q.prompter.Select("Which browser should fill the form?", SupportedBrowsers, def)
	if err != nil {
		return nil, err
	}
	cfg.Browser = choice

	link, err := q.prompter.Input("Form link:", cfg.FormURL, ValidateFormURL)
	if err != nil {
		return nil, err
	}
	cfg.FormURL = strings.TrimSpace(link)

	times, err := q.AskRepetitions(cfg.Repetitions)
	if err != nil {
		return nil, err
	}
	cfg.Repetitions = times

	return &cfg, nil
}

// AskRepetitions prompts for the number of passes.
func (q *Questionnaire) AskRepetitions(def int) (int, error) {
	if def < 1 {
		def = 1
	}
	answer, err := q.prompter.Input("How many times should the form be filled?", strconv.Itoa(def), validateRepetitions)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(answer))
}

func validateRepetitions(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("enter a whole number: %w", err)
	}
	if n < 1 {
		return errors.New("enter at least 1")
	}
	return nil
}
