package device

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/railyard/railyard/pkg/types"
)

// Param describes one integer construction parameter.
type Param struct {
	Name     string
	Default  int
	Required bool
}

// Spec is one entry of the device catalogue.
type Spec struct {
	Name         string
	RequiredPins int
	On, Off      State
	Stateless    bool
	Params       []Param

	build func(env Env, d *device) (actuator, error)
	check func(p Params) error
}

// New constructs a device of this type on pins. params must come from Lookup
// or Resolve; missing optional parameters take their defaults.
func (s *Spec) New(env Env, pins []int, params Params) (Device, error) {
	if env.Backend == nil {
		return nil, fmt.Errorf("device: %s: no gpio backend", s.Name)
	}
	if len(pins) != s.RequiredPins {
		return nil, fmt.Errorf("%w: %s needs %d, got %d", ErrPinCount, s.Name, s.RequiredPins, len(pins))
	}
	resolved, err := s.Resolve(params)
	if err != nil {
		return nil, err
	}
	sorted := append([]int(nil), pins...)
	sort.Ints(sorted)

	d := &device{id: newID(), spec: s, pins: sorted, params: resolved}
	act, err := s.build(env.withDefaults(), d)
	if err != nil {
		return nil, fmt.Errorf("device: start %s: %w", d, err)
	}
	d.act = act
	return d, nil
}

// Resolve fills defaults into p and validates the result.
func (s *Spec) Resolve(p Params) (Params, error) {
	if len(s.Params) == 0 {
		if len(p) > 0 {
			return nil, fmt.Errorf("%w: %s takes no parameters", ErrInvalidParams, s.Name)
		}
		return nil, nil
	}
	out := make(Params, len(s.Params))
	known := make(map[string]bool, len(s.Params))
	for _, def := range s.Params {
		known[def.Name] = true
		v, ok := p[def.Name]
		switch {
		case ok:
			out[def.Name] = v
		case def.Required:
			return nil, fmt.Errorf("%w: %s requires %s", ErrInvalidParams, s.Name, def.Name)
		default:
			out[def.Name] = def.Default
		}
	}
	for k := range p {
		if !known[k] {
			return nil, fmt.Errorf("%w: %s has no parameter %q", ErrInvalidParams, s.Name, k)
		}
	}
	if s.check != nil {
		if err := s.check(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

var catalogue = map[string]*Spec{}

func register(s *Spec) {
	if _, dup := catalogue[s.Name]; dup {
		panic("device: duplicate spec " + s.Name)
	}
	catalogue[s.Name] = s
}

// ByName returns the spec registered as name without parsing or resolving
// parameters. Saved layouts carry their parameters separately.
func ByName(name string) (*Spec, error) {
	s, ok := catalogue[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return s, nil
}

// Lookup resolves a type string such as "RelayTrainSwitch" or
// "LightBeam(n=30,r=0,g=10)" to its spec and the parsed parameters.
func Lookup(typ string) (*Spec, Params, error) {
	name, raw, err := splitType(typ)
	if err != nil {
		return nil, nil, err
	}
	s, ok := catalogue[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	params, err := parseParams(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	if _, err := s.Resolve(params); err != nil {
		return nil, nil, err
	}
	return s, params, nil
}

// TypeString is the inverse of Lookup.
func TypeString(name string, params Params) string {
	if len(params) == 0 {
		return name
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	// Keep the declared order when the spec is known.
	if s, ok := catalogue[name]; ok && len(s.Params) > 0 {
		keys = keys[:0]
		for _, def := range s.Params {
			if _, ok := params[def.Name]; ok {
				keys = append(keys, def.Name)
			}
		}
	} else {
		sort.Strings(keys)
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Itoa(params[k])
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

// Types lists the catalogue sorted by name.
func Types() []types.DeviceType {
	out := make([]types.DeviceType, 0, len(catalogue))
	for _, s := range catalogue {
		out = append(out, types.DeviceType{
			Name:         s.Name,
			RequiredPins: s.RequiredPins,
			OnState:      string(s.On),
			OffState:     string(s.Off),
			Stateless:    s.Stateless,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func splitType(typ string) (name, params string, err error) {
	typ = strings.TrimSpace(typ)
	open := strings.IndexByte(typ, '(')
	if open < 0 {
		if typ == "" {
			return "", "", fmt.Errorf("%w: empty type", ErrUnknownType)
		}
		return typ, "", nil
	}
	if !strings.HasSuffix(typ, ")") {
		return "", "", fmt.Errorf("%w: unterminated parameter list in %q", ErrInvalidParams, typ)
	}
	return strings.TrimSpace(typ[:open]), typ[open+1 : len(typ)-1], nil
}

func parseParams(raw string) (Params, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := Params{}
	for _, kv := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(kv, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q is not key=value", ErrInvalidParams, kv)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidParams, k, v)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%w: %s given twice", ErrInvalidParams, k)
		}
		out[k] = n
	}
	return out, nil
}
