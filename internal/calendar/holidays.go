package calendar

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "daily-stock-analysis/internal/errors"
)

// holidayFile is the on-disk layout of a holiday table:
//
//	holidays:
//	  - date: "2025-10-01"
//	    name: National Day
//	workdays:
//	  - "2025-09-28"
type holidayFile struct {
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
	Workdays []string `yaml:"workdays"`
}

// YAMLHolidayTable reads holidays and make-up working days from a YAML file.
// The file is re-read on every lookup; callers cache per year.
type YAMLHolidayTable struct {
	path string
}

// NewYAMLHolidayTable creates a holiday table backed by the file at path.
func NewYAMLHolidayTable(path string) *YAMLHolidayTable {
	return &YAMLHolidayTable{path: path}
}

// Holidays returns the entries of the requested year. A year with no entries
// in the file is reported as unavailable rather than as a year without
// holidays.
func (t *YAMLHolidayTable) Holidays(ctx context.Context, year int) (*YearTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrHolidayTableUnavailable, err)
	}
	return parseHolidayYAML(data, year)
}

func parseHolidayYAML(data []byte, year int) (*YearTable, error) {
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing holiday file: %v", apperrors.ErrHolidayTableUnavailable, err)
	}

	out := &YearTable{
		Holidays: make(map[string]string),
		Workdays: make(map[string]bool),
	}
	for _, h := range f.Holidays {
		d, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: bad holiday date %q", apperrors.ErrHolidayTableUnavailable, h.Date)
		}
		if d.Year() == year {
			out.Holidays[h.Date] = h.Name
		}
	}
	for _, w := range f.Workdays {
		d, err := time.Parse("2006-01-02", w)
		if err != nil {
			return nil, fmt.Errorf("%w: bad workday date %q", apperrors.ErrHolidayTableUnavailable, w)
		}
		if d.Year() == year {
			out.Workdays[w] = true
		}
	}

	if len(out.Holidays) == 0 && len(out.Workdays) == 0 {
		return nil, fmt.Errorf("%w: no entries for %d", apperrors.ErrHolidayTableUnavailable, year)
	}
	return out, nil
}
