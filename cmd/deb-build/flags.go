package main

import (
	"fmt"
	"sort"
	"strings"
)

// kvFlags collects repeated KEY=VALUE flags.
type kvFlags map[string]string

// String implements the pflag.Value interface.
func (i *kvFlags) String() string {
	s := make([]string, 0, len(*i))
	for k, v := range *i {
		s = append(s, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(s)
	return strings.Join(s, ", ")
}

// Set implements the pflag.Value interface.
func (i *kvFlags) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || k == "" {
		return fmt.Errorf("invalid format %q, expected KEY=VALUE", value)
	}
	(*i)[k] = v
	return nil
}

// Type implements the pflag.Value interface.
func (i *kvFlags) Type() string { return "KEY=VALUE" }
