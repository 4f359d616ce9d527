package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

// Inline is a dataset written directly in a recipe or a YAML/JSON/TOML file,
// either as header + rows or as a list of named columns.
type Inline struct {
	Name    string         `mapstructure:"name"`
	Header  []string       `mapstructure:"header"`
	Rows    [][]any        `mapstructure:"rows"`
	Columns []InlineColumn `mapstructure:"columns"`
}

// InlineColumn is one column of an inline dataset.
type InlineColumn struct {
	Name   string `mapstructure:"name"`
	Unit   string `mapstructure:"unit"`
	Values []any  `mapstructure:"values"`
}

// IsZero reports whether the document carries no data.
func (in Inline) IsZero() bool {
	return len(in.Header) == 0 && len(in.Rows) == 0 && len(in.Columns) == 0
}

// FromInline builds a Table. Columns may have different lengths; short ones
// are padded with empty cells.
func FromInline(in Inline, loc Locale) (*Table, error) {
	if len(in.Columns) > 0 {
		if len(in.Header) > 0 || len(in.Rows) > 0 {
			return nil, fmt.Errorf("inline dataset %q: use either columns or header/rows", in.Name)
		}
		n := 0
		for _, c := range in.Columns {
			if len(c.Values) > n {
				n = len(c.Values)
			}
		}
		header := make([]string, len(in.Columns))
		rows := make([][]string, n)
		for i := range rows {
			rows[i] = make([]string, len(in.Columns))
		}
		for j, c := range in.Columns {
			header[j] = c.Name
			if c.Unit != "" {
				header[j] = fmt.Sprintf("%s (%s)", c.Name, c.Unit)
			}
			for i, v := range c.Values {
				rows[i][j] = formatCell(v, loc)
			}
		}
		return NewTable(in.Name, header, rows, loc), nil
	}
	if len(in.Header) == 0 {
		return nil, fmt.Errorf("inline dataset %q: missing header", in.Name)
	}
	rows := make([][]string, len(in.Rows))
	for i, r := range in.Rows {
		if len(r) > len(in.Header) {
			return nil, fmt.Errorf("inline dataset %q: row %d has %d cells, header has %d", in.Name, i+1, len(r), len(in.Header))
		}
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = formatCell(v, loc)
		}
	}
	return NewTable(in.Name, in.Header, rows, loc), nil
}

// formatCell renders native numbers with the locale's decimal separator so
// they parse back to the same value.
func formatCell(v any, loc Locale) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
	if loc.Decimal != 0 && loc.Decimal != '.' {
		s = strings.Replace(s, ".", string(loc.Decimal), 1)
	}
	return s
}

// DecodeInline decodes a generic map (from YAML/JSON/TOML) into an Inline.
func DecodeInline(m map[string]any) (Inline, error) {
	var in Inline
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &in, WeaklyTypedInput: true})
	if err != nil {
		return in, err
	}
	if err := dec.Decode(m); err != nil {
		return in, fmt.Errorf("decode inline dataset: %w", err)
	}
	return in, nil
}

type documentLoader struct{}

func (documentLoader) CanLoad(path string) bool {
	return utils.StructuredFormat(path) != ""
}

func (documentLoader) Load(path string, opt Options) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	m, err := utils.DecodeStructured(b, utils.StructuredFormat(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	in, err := DecodeInline(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if in.IsZero() {
		return nil, fmt.Errorf("%w: %s has no header/rows or columns", ErrUnsupportedFormat, filepath.Base(path))
	}
	if in.Name == "" {
		in.Name = baseName(path)
	}
	t, err := FromInline(in, opt.Locale)
	if err != nil {
		return nil, err
	}
	t.Source = path
	if opt.MaxRows > 0 && t.Len() > opt.MaxRows {
		keep := make([]int, opt.MaxRows)
		for i := range keep {
			keep[i] = i
		}
		t = t.Subset(keep)
	}
	return t, nil
}
