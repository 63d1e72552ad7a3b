package indicator

import (
	"fmt"
	"log/slog"
	"strings"
)

// Reload swaps in new configurations. Cached values are keyed by computation,
// so indicators kept across the reload reuse their memoised history and only
// genuinely new ones start cold. Returns the number of preserved and new
// indicator definitions.
func (e *Engine) Reload(newConfigs []TFConfig) (preserved, created int, err error) {
	if err := ValidateConfigs(newConfigs); err != nil {
		return 0, 0, err
	}
	for _, c := range newConfigs {
		old := make(map[string]bool, len(e.configs[c.TF]))
		for _, ic := range e.configs[c.TF] {
			old[ic.Name()] = true
		}
		for _, ic := range c.Indicators {
			if old[ic.Name()] {
				preserved++
			} else {
				created++
			}
		}
	}
	e.install(newConfigs)
	slog.Info("indicator config reloaded", "timeframes", len(newConfigs), "preserved", preserved, "created", created)
	return preserved, created, nil
}

// ValidateConfigs checks a set of TFConfigs for errors.
func ValidateConfigs(configs []TFConfig) error {
	seen := make(map[int]bool)
	for _, cfg := range configs {
		if !cfg.TF.Valid() {
			return fmt.Errorf("invalid TF=%d: not a supported timeframe", int(cfg.TF))
		}
		if seen[int(cfg.TF)] {
			return fmt.Errorf("duplicate TF=%s", cfg.TF)
		}
		seen[int(cfg.TF)] = true

		names := make(map[string]bool, len(cfg.Indicators))
		for _, ind := range cfg.Indicators {
			t := strings.ToUpper(ind.Type)
			switch {
			case periodic[t]:
				if ind.Period <= 0 {
					return fmt.Errorf("invalid period=%d for %s on TF=%s", ind.Period, t, cfg.TF)
				}
			case periodless[t]:
				if ind.Period != 0 {
					return fmt.Errorf("%s on TF=%s takes no period, got %d", t, cfg.TF, ind.Period)
				}
			default:
				return fmt.Errorf("unknown indicator type %q for TF=%s", ind.Type, cfg.TF)
			}
			if names[ind.Name()] {
				return fmt.Errorf("duplicate indicator %s on TF=%s", ind.Name(), cfg.TF)
			}
			names[ind.Name()] = true
		}
	}
	return nil
}
