package training

import (
	_ "embed"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mimir-aip/waterquality/pkg/models"
)

//go:embed search_spaces.yaml
var defaultSearchSpaces []byte

// SearchSpace is a discrete grid of hyperparameter values. Names are kept
// sorted so that combination numbering is stable.
type SearchSpace struct {
	Names  []string
	Values [][]interface{}
}

// SearchSpaces maps every roster kind to its grid
type SearchSpaces map[models.ModelKind]*SearchSpace

type paramSpec struct {
	Values   []interface{} `yaml:"values"`
	Logspace *struct {
		Start float64 `yaml:"start"`
		Stop  float64 `yaml:"stop"`
		Num   int     `yaml:"num"`
	} `yaml:"logspace"`
}

// DefaultSearchSpaces returns the built-in grids
func DefaultSearchSpaces() SearchSpaces {
	spaces, err := ParseSearchSpaces(defaultSearchSpaces)
	if err != nil {
		panic(fmt.Sprintf("embedded search spaces are invalid: %v", err))
	}
	return spaces
}

// LoadSearchSpaces reads grids from a YAML file
func LoadSearchSpaces(path string) (SearchSpaces, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open search spaces: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read search spaces: %w", err)
	}
	return ParseSearchSpaces(data)
}

// ParseSearchSpaces decodes YAML grids. Kinds absent from the document get an
// empty grid, which evaluates the regressor defaults only.
func ParseSearchSpaces(data []byte) (SearchSpaces, error) {
	var raw map[string]map[string]paramSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse search spaces: %w", err)
	}

	spaces := make(SearchSpaces, len(models.ModelKinds))
	for _, kind := range models.ModelKinds {
		spaces[kind] = &SearchSpace{}
	}
	for name, params := range raw {
		kind, err := models.ParseModelKind(name)
		if err != nil {
			return nil, fmt.Errorf("search spaces: %w", err)
		}
		space, err := buildSpace(params)
		if err != nil {
			return nil, fmt.Errorf("search space %s: %w", kind, err)
		}
		spaces[kind] = space
	}
	return spaces, nil
}

func buildSpace(params map[string]paramSpec) (*SearchSpace, error) {
	s := &SearchSpace{}
	for name := range params {
		s.Names = append(s.Names, name)
	}
	sort.Strings(s.Names)

	for _, name := range s.Names {
		spec := params[name]
		var values []interface{}
		switch {
		case spec.Logspace != nil:
			ls := spec.Logspace
			if ls.Num < 1 {
				return nil, fmt.Errorf("%s: logspace needs num >= 1", name)
			}
			for _, v := range logspace(ls.Start, ls.Stop, ls.Num) {
				values = append(values, v)
			}
		case len(spec.Values) > 0:
			for _, v := range spec.Values {
				if f, ok := toFloat(v); ok {
					values = append(values, f)
					continue
				}
				switch v.(type) {
				case nil, string:
					values = append(values, v)
				default:
					return nil, fmt.Errorf("%s: unsupported value %v", name, v)
				}
			}
		default:
			return nil, fmt.Errorf("%s: needs values or logspace", name)
		}
		s.Values = append(s.Values, values)
	}
	return s, nil
}

// logspace returns num points evenly spaced in log10 between 10^start and 10^stop
func logspace(start, stop float64, num int) []float64 {
	if num == 1 {
		return []float64{math.Pow(10, start)}
	}
	out := make([]float64, num)
	step := (stop - start) / float64(num-1)
	for i := range out {
		out[i] = math.Pow(10, start+float64(i)*step)
	}
	return out
}

// Size is the number of distinct combinations in the grid
func (s *SearchSpace) Size() int {
	size := 1
	for _, v := range s.Values {
		size *= len(v)
	}
	return size
}

// Combination decodes combination i (mixed radix, last name fastest)
func (s *SearchSpace) Combination(i int) Params {
	p := make(Params, len(s.Names))
	for k := len(s.Names) - 1; k >= 0; k-- {
		n := len(s.Values[k])
		p[s.Names[k]] = s.Values[k][i%n]
		i /= n
	}
	return p
}

// Sample draws up to n distinct combinations without replacement. When the
// grid has at most n combinations all of them are returned in grid order.
func (s *SearchSpace) Sample(n int, rng *rand.Rand) []Params {
	size := s.Size()
	if size <= n {
		out := make([]Params, size)
		for i := range out {
			out[i] = s.Combination(i)
		}
		return out
	}

	out := make([]Params, 0, n)
	for _, i := range rng.Perm(size)[:n] {
		out = append(out, s.Combination(i))
	}
	return out
}
