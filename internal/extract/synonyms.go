package extract

import (
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// SynonymConfig maps a normalized term to its known synonyms. The file is
// optional; embedded defaults cover the common device vocabulary.
type SynonymConfig struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

var (
	synonymConfig     *SynonymConfig
	synonymConfigOnce sync.Once
	synonymMu         sync.RWMutex
)

// SynonymConfigPath returns the config path, checking the env var first.
func SynonymConfigPath() string {
	if envPath := os.Getenv("MEDWATCH_SYNONYMS_PATH"); envPath != "" {
		return envPath
	}
	return "config/synonyms.yaml"
}

func loadSynonymConfig() *SynonymConfig {
	synonymConfigOnce.Do(func() {
		cfg := loadSynonymFile(SynonymConfigPath())
		synonymMu.Lock()
		synonymConfig = cfg
		synonymMu.Unlock()
	})
	synonymMu.RLock()
	defer synonymMu.RUnlock()
	return synonymConfig
}

func loadSynonymFile(path string) *SynonymConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultSynonymConfig()
	}
	var cfg SynonymConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("Warning: failed to parse synonym config %s: %v. Using defaults.", path, err)
		return defaultSynonymConfig()
	}
	if cfg.Synonyms == nil {
		cfg.Synonyms = map[string][]string{}
	}
	return &cfg
}

// ReloadSynonyms re-reads the synonym file. Called by the config watcher
// when the file changes on disk.
func ReloadSynonyms() {
	cfg := loadSynonymFile(SynonymConfigPath())
	synonymMu.Lock()
	synonymConfig = cfg
	synonymMu.Unlock()
}

// ResetSynonymConfigForTest resets the singleton. Test code only.
func ResetSynonymConfigForTest() {
	synonymMu.Lock()
	defer synonymMu.Unlock()
	synonymConfigOnce = sync.Once{}
	synonymConfig = nil
}

// SynonymsFor returns the configured synonyms for a lowercased term, in
// file order.
func SynonymsFor(term string) []string {
	cfg := loadSynonymConfig()
	synonymMu.RLock()
	defer synonymMu.RUnlock()
	return cfg.Synonyms[term]
}

func defaultSynonymConfig() *SynonymConfig {
	return &SynonymConfig{
		Synonyms: map[string][]string{
			"pacemaker":     {"cardiac pacemaker", "pulse generator"},
			"defibrillator": {"implantable cardioverter defibrillator", "icd"},
			"stent":         {"coronary stent", "vascular stent"},
			"insulin pump":  {"insulin infusion pump"},
			"hip implant":   {"hip prosthesis"},
			"knee implant":  {"knee prosthesis"},
			"hernia mesh":   {"surgical mesh"},
			"ventilator":    {"mechanical ventilator"},
			"glucose monitor": {
				"continuous glucose monitor",
				"blood glucose meter",
			},
		},
	}
}
