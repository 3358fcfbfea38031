package config

import (
	"fmt"
	"strconv"
	"strings"

	"fxhistorian/internal/model"
)

var namedPeriods = map[string]int64{
	"S1": 1, "S10": 10, "S30": 30,
	"M1": 60, "M2": 120, "M3": 180, "M4": 240, "M5": 300, "M10": 600, "M15": 900, "M30": 1800,
	"H1": 3600, "H4": 14400,
	"D1": 86400,
}

// ParsePeriod resolves the Period option (§6) into a model.Period. "TICK"
// yields the zero Period (pass-through mode). "CUSTOM:<n><s|m|h|d>" and a
// bare suffixed duration like "90s" are both accepted.
func ParsePeriod(raw string) (model.Period, error) {
	raw = strings.TrimSpace(strings.ToUpper(raw))
	if raw == "" || raw == "TICK" {
		return model.Period(0), nil
	}
	if secs, ok := namedPeriods[raw]; ok {
		return model.Period(secs), nil
	}

	custom := strings.TrimPrefix(raw, "CUSTOM:")
	if secs, err := strconv.ParseInt(custom, 10, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("config: period must be > 0 seconds, got %d", secs)
		}
		return model.Period(secs), nil
	}

	if len(custom) >= 2 {
		unit := custom[len(custom)-1]
		numPart := custom[:len(custom)-1]
		n, err := strconv.ParseInt(numPart, 10, 64)
		if err == nil {
			var mult int64
			switch unit {
			case 'S':
				mult = 1
			case 'M':
				mult = 60
			case 'H':
				mult = 3600
			case 'D':
				mult = 86400
			default:
				return 0, fmt.Errorf("config: unrecognized period %q", raw)
			}
			if n <= 0 {
				return 0, fmt.Errorf("config: period must be > 0, got %q", raw)
			}
			return model.Period(n * mult), nil
		}
	}

	return 0, fmt.Errorf("config: unrecognized period %q", raw)
}

// ResolveDataSource decides NATIVE vs TICK for the AUTO source, per the
// specification's data-source selection rule.
func ResolveDataSource(source model.DataSource, period model.Period) (model.DataSource, error) {
	_, qualifies := model.NativeTimeframeForPeriod(period)

	switch source {
	case model.SourceNative:
		if !qualifies {
			return "", fmt.Errorf("config: native data source requires period in {M1,H1,D1}")
		}
		return model.SourceNative, nil
	case model.SourceTick:
		return model.SourceTick, nil
	case model.SourceAuto, "":
		if qualifies {
			return model.SourceNative, nil
		}
		return model.SourceTick, nil
	default:
		return "", fmt.Errorf("config: unrecognized data_source %q", source)
	}
}
