package metadata

import (
	"fmt"
	"io"
	"regexp"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// ActionTable maps the handler names used in a manifest to Go actions.
type ActionTable map[string]Action

// HookTable maps the hook names used in a manifest to hook instances.
type HookTable map[string]common.Hook

// Manifest is the declarative form of a Store.
type Manifest struct {
	Routes []RouteSpec `mapstructure:"routes"`
	Hooks  []HookSpec  `mapstructure:"hooks"`
}

// RouteSpec declares one route of a manifest.
type RouteSpec struct {
	Area       string      `mapstructure:"area"`
	Controller string      `mapstructure:"controller"`
	Action     string      `mapstructure:"action"`
	Method     string      `mapstructure:"method"`
	Path       string      `mapstructure:"path"`
	Handler    string      `mapstructure:"handler"`
	Encoder    string      `mapstructure:"encoder"`
	Params     []ParamSpec `mapstructure:"params"`
}

// ParamSpec declares one action parameter of a manifest route.
type ParamSpec struct {
	Index     int    `mapstructure:"index"`
	Kind      string `mapstructure:"kind"`
	Name      string `mapstructure:"name"`
	Transform string `mapstructure:"transform"`
}

// HookSpec declares one hook registration of a manifest.
type HookSpec struct {
	Name       string         `mapstructure:"name"`
	Hook       string         `mapstructure:"hook"`
	Pattern    string         `mapstructure:"pattern"`
	Area       string         `mapstructure:"area"`
	Controller string         `mapstructure:"controller"`
	Action     string         `mapstructure:"action"`
	Payload    map[string]any `mapstructure:"payload"`
}

// LoadManifest reads a manifest file (YAML, JSON or TOML, by extension) and
// builds the Store it describes.
func LoadManifest(path string, actions ActionTable, hooks HookTable) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return buildFromViper(v, actions, hooks)
}

// ReadManifest is LoadManifest for an in-memory manifest. format is a viper
// config type such as "yaml" or "json".
func ReadManifest(r io.Reader, format string, actions ActionTable, hooks HookTable) (*Store, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return buildFromViper(v, actions, hooks)
}

func buildFromViper(v *viper.Viper, actions ActionTable, hooks HookTable) (*Store, error) {
	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return m.Build(actions, hooks)
}

// Build resolves the handler and hook names of m and builds the Store.
func (m Manifest) Build(actions ActionTable, hooks HookTable) (*Store, error) {
	b := NewBuilder()
	var err error

	for _, rs := range m.Routes {
		route, rerr := rs.route(actions)
		if rerr != nil {
			err = multierr.Append(err, rerr)
			continue
		}
		b.Route(route)
	}

	for _, hs := range m.Hooks {
		hook, herr := hs.hook(hooks)
		if herr != nil {
			err = multierr.Append(err, herr)
			continue
		}
		b.Hook(hook)
	}

	store, berr := b.Build()
	if err = multierr.Append(err, berr); err != nil {
		return nil, err
	}
	return store, nil
}

func (rs RouteSpec) route(actions ActionTable) (RouteMetadata, error) {
	route := RouteMetadata{
		Area:       rs.Area,
		Controller: rs.Controller,
		Action:     rs.Action,
		Method:     rs.Method,
		Path:       rs.Path,
	}

	var err error
	handler, ok := actions[rs.Handler]
	if !ok {
		err = multierr.Append(err, fmt.Errorf("%w %q for %s %s", ErrUnknownAction, rs.Handler, rs.Method, rs.Path))
	}
	route.Handler = handler

	enc, eerr := encoderByName(rs.Encoder)
	err = multierr.Append(err, eerr)
	route.Encoder = enc

	for _, ps := range rs.Params {
		src, serr := SourceFor(common.ParamKind(ps.Kind), ps.Name)
		if serr != nil {
			err = multierr.Append(err, fmt.Errorf("%s %s param %d: %w", rs.Method, rs.Path, ps.Index, serr))
			continue
		}
		param := ActionParam{Index: ps.Index, Source: src}
		if ps.Transform != "" {
			param.Transform = TransformID(ps.Transform)
		}
		route.Params = append(route.Params, param)
	}
	return route, err
}

func (hs HookSpec) hook(hooks HookTable) (HookMetadata, error) {
	instance, ok := hooks[hs.Hook]
	if !ok {
		return HookMetadata{}, fmt.Errorf("%w %q", ErrUnknownHook, hs.Hook)
	}
	name := hs.Name
	if name == "" {
		name = hs.Hook
	}
	meta := HookMetadata{
		Name:     name,
		Instance: instance,
		Scope:    Scope{Area: hs.Area, Controller: hs.Controller, Action: hs.Action},
	}
	if hs.Payload != nil {
		meta.Payload = hs.Payload
	}
	if hs.Pattern != "" {
		re, err := regexp.Compile(hs.Pattern)
		if err != nil {
			return HookMetadata{}, fmt.Errorf("%w %q for hook %q: %v", ErrInvalidPattern, hs.Pattern, name, err)
		}
		meta.Pattern = re
	}
	return meta, nil
}

func encoderByName(name string) (codec.Encoder, error) {
	switch name {
	case "", "json":
		return nil, nil
	case "proto":
		return codec.NewProtoEncoder(), nil
	case "raw", "text":
		return &codec.RawEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEncoder, name)
	}
}
