// Package config holds typed configuration variables. A variable is set, in order of
// precedence, by a flag, by the environment, by a config file, or by its default.
package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
)

type Value interface {
	flag.Value
	SetValue(v interface{}) error
}

type By int

const (
	ByDefault By = iota
	ByConfig
	ByEnv
	ByFlag
)

func (by By) String() string {
	switch by {
	case ByDefault:
		return "default"
	case ByConfig:
		return "config"
	case ByEnv:
		return "env"
	case ByFlag:
		return "flag"
	}
	return fmt.Sprintf("By(%d)", int(by))
}

type Config struct {
	fs   *flag.FlagSet
	vars map[string]*Var
}

type Var struct {
	cfg      *Config
	p        interface{}
	name     string
	usage    string
	env      string
	noConfig bool
	choices  []string
	val      Value
	by       By
}

type flagValue struct {
	v *Var
}

// NewConfig returns an empty config whose variables are also flags of fs.
func NewConfig(fs *flag.FlagSet) *Config {
	return &Config{
		fs:   fs,
		vars: map[string]*Var{},
	}
}

func (c *Config) FlagSet() *flag.FlagSet {
	return c.fs
}

// Var starts the definition of the variable name stored at p; the definition is finished by
// one of the typed methods of Var, such as Int.
func (c *Config) Var(p interface{}, name string) *Var {
	if _, ok := c.vars[name]; ok {
		panic(fmt.Sprintf("config: variable redefined: %s", name))
	}
	return &Var{
		cfg:  c,
		p:    p,
		name: name,
	}
}

func (v *Var) Usage(usage string) *Var {
	v.usage = usage
	return v
}

// Env names the environment variable which sets the variable.
func (v *Var) Env(env string) *Var {
	v.env = env
	return v
}

// NoConfig prevents the variable from being set in a config file.
func (v *Var) NoConfig() *Var {
	v.noConfig = true
	return v
}

func (v *Var) define(typ string, ok bool) {
	if !ok {
		panic(fmt.Sprintf("config: variable %s: expected %s; got %T", v.name, typ, v.p))
	}
	if v.choices != nil && typ != "*string" {
		panic(fmt.Sprintf("config: variable %s: choices on %s", v.name, typ))
	}
	v.val = value{p: v.p, choices: v.choices}
	v.by = ByDefault
	v.cfg.vars[v.name] = v
	if v.cfg.fs != nil {
		v.cfg.fs.Var(flagValue{v}, v.name, v.usage)
	}
}

// Choices limits a string variable to one of choices.
func (v *Var) Choices(choices ...string) *Var {
	v.choices = choices
	return v
}

func (v *Var) Bool(b bool) *bool {
	p, ok := v.p.(*bool)
	v.define("*bool", ok)
	*p = b
	return p
}

func (v *Var) Int(i int) *int {
	p, ok := v.p.(*int)
	v.define("*int", ok)
	*p = i
	return p
}

func (v *Var) Int64(i int64) *int64 {
	p, ok := v.p.(*int64)
	v.define("*int64", ok)
	*p = i
	return p
}

func (v *Var) String(s string) *string {
	p, ok := v.p.(*string)
	v.define("*string", ok)
	if v.choices != nil {
		err := v.val.Set(s)
		if err != nil {
			panic(fmt.Sprintf("config: variable %s: default %s", v.name, err))
		}
	}
	*p = s
	return p
}

func (fv flagValue) Set(s string) error {
	err := fv.v.val.Set(s)
	if err != nil {
		return err
	}
	fv.v.by = ByFlag
	return nil
}

func (fv flagValue) String() string {
	if fv.v == nil || fv.v.val == nil {
		return ""
	}
	return fv.v.val.String()
}

func (fv flagValue) IsBoolFlag() bool {
	if fv.v == nil {
		return false
	}
	bf, ok := fv.v.val.(interface{ IsBoolFlag() bool })
	return ok && bf.IsBoolFlag()
}

// Env sets each variable, not already set by a flag, from its environment variable.
func (c *Config) Env() error {
	for _, v := range c.vars {
		if v.env == "" || v.by == ByFlag {
			continue
		}
		s, ok := os.LookupEnv(v.env)
		if !ok {
			continue
		}
		err := v.val.Set(s)
		if err != nil {
			return fmt.Errorf("config: %s: %s: %s", v.name, v.env, err)
		}
		v.by = ByEnv
	}
	return nil
}

// Set sets the variable name as if by a flag.
func (c *Config) Set(name, s string) error {
	v, ok := c.vars[name]
	if !ok {
		return fmt.Errorf("config: %s is not a config variable", name)
	}
	return flagValue{v}.Set(s)
}

type Setting struct {
	Name  string
	By    By
	Value string
}

// Settings returns the current value of every variable, sorted by name.
func (c *Config) Settings() []Setting {
	settings := make([]Setting, 0, len(c.vars))
	for _, v := range c.vars {
		settings = append(settings, Setting{
			Name:  v.name,
			By:    v.by,
			Value: v.val.String(),
		})
	}
	sort.Slice(settings,
		func(i, j int) bool {
			return settings[i].Name < settings[j].Name
		})
	return settings
}
