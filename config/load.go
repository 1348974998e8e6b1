package config

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/hashicorp/hcl"
)

// Load sets variables from an HCL config file. A variable already set by a flag or the
// environment keeps its value.
func (c *Config) Load(r io.Reader) error {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}

	var cfg map[string]interface{}
	err = hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}
	for name, val := range cfg {
		v, ok := c.vars[name]
		if !ok {
			return fmt.Errorf("config: %s is not a config variable", name)
		}
		if v.noConfig {
			return fmt.Errorf("config: %s can't be set in config file", name)
		}

		if v.by == ByDefault {
			err := v.val.SetValue(val)
			if err != nil {
				return fmt.Errorf("config: %s: %s", v.name, err)
			}
			v.by = ByConfig
		}
	}

	return nil
}
